package networking

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

// Field numbers of the binary snapshot format. The layout is protobuf compatible
// so external tooling can read it with a matching .proto definition.
const (
	snapshotTick        protowire.Number = 1
	snapshotPlayers     protowire.Number = 2
	snapshotProjectiles protowire.Number = 3
	snapshotCraters     protowire.Number = 4

	playerID       protowire.Number = 1
	playerPosition protowire.Number = 2
	playerVelocity protowire.Number = 3
	playerYaw      protowire.Number = 4
	playerHealth   protowire.Number = 5

	projectileID        protowire.Number = 1
	projectilePosition  protowire.Number = 2
	projectileVelocity  protowire.Number = 3
	projectileOwner     protowire.Number = 4
	projectileSpawnTick protowire.Number = 5

	craterPosition protowire.Number = 1
	craterDepth    protowire.Number = 2

	vectorX protowire.Number = 1
	vectorY protowire.Number = 2
	vectorZ protowire.Number = 3
)

// ErrWireFormat reports a binary snapshot that could not be parsed.
var ErrWireFormat = errors.New("invalid binary snapshot")

// MarshalSnapshot encodes a snapshot in the compact binary format.
func MarshalSnapshot(snapshot state.Snapshot) []byte {
	buf := make([]byte, 0, 64+len(snapshot.Players)*64+len(snapshot.Projectiles)*64+len(snapshot.Craters)*40)
	buf = protowire.AppendTag(buf, snapshotTick, protowire.VarintType)
	buf = protowire.AppendVarint(buf, snapshot.Tick)
	for _, player := range snapshot.Players {
		buf = protowire.AppendTag(buf, snapshotPlayers, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendPlayer(nil, player))
	}
	for _, projectile := range snapshot.Projectiles {
		buf = protowire.AppendTag(buf, snapshotProjectiles, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendProjectile(nil, projectile))
	}
	for _, crater := range snapshot.Craters {
		buf = protowire.AppendTag(buf, snapshotCraters, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendCrater(nil, crater))
	}
	return buf
}

// UnmarshalSnapshot decodes MarshalSnapshot output. Unknown fields are skipped.
func UnmarshalSnapshot(data []byte) (state.Snapshot, error) {
	var snapshot state.Snapshot
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		switch {
		case num == snapshotTick && typ == protowire.VarintType:
			snapshot.Tick = scalar
		case num == snapshotPlayers && typ == protowire.BytesType:
			player, err := parsePlayer(value)
			if err != nil {
				return err
			}
			snapshot.Players = append(snapshot.Players, player)
		case num == snapshotProjectiles && typ == protowire.BytesType:
			projectile, err := parseProjectile(value)
			if err != nil {
				return err
			}
			snapshot.Projectiles = append(snapshot.Projectiles, projectile)
		case num == snapshotCraters && typ == protowire.BytesType:
			crater, err := parseCrater(value)
			if err != nil {
				return err
			}
			snapshot.Craters = append(snapshot.Craters, crater)
		}
		return nil
	})
	return snapshot, err
}

func appendVector(buf []byte, v vecmath.Vector3) []byte {
	buf = protowire.AppendTag(buf, vectorX, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(v.X))
	buf = protowire.AppendTag(buf, vectorY, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(v.Y))
	buf = protowire.AppendTag(buf, vectorZ, protowire.Fixed64Type)
	return protowire.AppendFixed64(buf, math.Float64bits(v.Z))
}

func appendPlayer(buf []byte, player state.PlayerView) []byte {
	buf = protowire.AppendTag(buf, playerID, protowire.BytesType)
	buf = protowire.AppendString(buf, player.ID)
	buf = protowire.AppendTag(buf, playerPosition, protowire.BytesType)
	buf = protowire.AppendBytes(buf, appendVector(nil, player.Position))
	buf = protowire.AppendTag(buf, playerVelocity, protowire.BytesType)
	buf = protowire.AppendBytes(buf, appendVector(nil, player.Velocity))
	buf = protowire.AppendTag(buf, playerYaw, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(player.Yaw))
	buf = protowire.AppendTag(buf, playerHealth, protowire.VarintType)
	return protowire.AppendVarint(buf, uint64(player.Health))
}

func appendProjectile(buf []byte, projectile state.Projectile) []byte {
	buf = protowire.AppendTag(buf, projectileID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, projectile.ID)
	buf = protowire.AppendTag(buf, projectilePosition, protowire.BytesType)
	buf = protowire.AppendBytes(buf, appendVector(nil, projectile.Position))
	buf = protowire.AppendTag(buf, projectileVelocity, protowire.BytesType)
	buf = protowire.AppendBytes(buf, appendVector(nil, projectile.Velocity))
	buf = protowire.AppendTag(buf, projectileOwner, protowire.BytesType)
	buf = protowire.AppendString(buf, projectile.OwnerID)
	buf = protowire.AppendTag(buf, projectileSpawnTick, protowire.VarintType)
	return protowire.AppendVarint(buf, projectile.SpawnTick)
}

func appendCrater(buf []byte, crater state.Crater) []byte {
	buf = protowire.AppendTag(buf, craterPosition, protowire.BytesType)
	buf = protowire.AppendBytes(buf, appendVector(nil, crater.Position))
	buf = protowire.AppendTag(buf, craterDepth, protowire.Fixed64Type)
	return protowire.AppendFixed64(buf, math.Float64bits(crater.Depth))
}

func parseVector(data []byte) (vecmath.Vector3, error) {
	var v vecmath.Vector3
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, _ []byte, scalar uint64) error {
		if typ != protowire.Fixed64Type {
			return nil
		}
		switch num {
		case vectorX:
			v.X = math.Float64frombits(scalar)
		case vectorY:
			v.Y = math.Float64frombits(scalar)
		case vectorZ:
			v.Z = math.Float64frombits(scalar)
		}
		return nil
	})
	return v, err
}

func parsePlayer(data []byte) (state.PlayerView, error) {
	var player state.PlayerView
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		var err error
		switch {
		case num == playerID && typ == protowire.BytesType:
			player.ID = string(value)
		case num == playerPosition && typ == protowire.BytesType:
			player.Position, err = parseVector(value)
		case num == playerVelocity && typ == protowire.BytesType:
			player.Velocity, err = parseVector(value)
		case num == playerYaw && typ == protowire.Fixed64Type:
			player.Yaw = math.Float64frombits(scalar)
		case num == playerHealth && typ == protowire.VarintType:
			player.Health = int(scalar)
		}
		return err
	})
	return player, err
}

func parseProjectile(data []byte) (state.Projectile, error) {
	var projectile state.Projectile
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		var err error
		switch {
		case num == projectileID && typ == protowire.VarintType:
			projectile.ID = scalar
		case num == projectilePosition && typ == protowire.BytesType:
			projectile.Position, err = parseVector(value)
		case num == projectileVelocity && typ == protowire.BytesType:
			projectile.Velocity, err = parseVector(value)
		case num == projectileOwner && typ == protowire.BytesType:
			projectile.OwnerID = string(value)
		case num == projectileSpawnTick && typ == protowire.VarintType:
			projectile.SpawnTick = scalar
		}
		return err
	})
	return projectile, err
}

func parseCrater(data []byte) (state.Crater, error) {
	var crater state.Crater
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		var err error
		switch {
		case num == craterPosition && typ == protowire.BytesType:
			crater.Position, err = parseVector(value)
		case num == craterDepth && typ == protowire.Fixed64Type:
			crater.Depth = math.Float64frombits(scalar)
		}
		return err
	})
	return crater, err
}

// walkFields visits every field of a message. Bytes fields arrive in value,
// varint and fixed64 fields in scalar; other wire types are skipped.
func walkFields(data []byte, visit func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrWireFormat, protowire.ParseError(n))
		}
		data = data[n:]
		var value []byte
		var scalar uint64
		switch typ {
		case protowire.VarintType:
			scalar, n = protowire.ConsumeVarint(data)
		case protowire.Fixed64Type:
			scalar, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			value, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrWireFormat, protowire.ParseError(n))
		}
		data = data[n:]
		if err := visit(num, typ, value, scalar); err != nil {
			return err
		}
	}
	return nil
}
