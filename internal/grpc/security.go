package grpc

import (
	"crypto/subtle"
	"strings"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// SharedSecretMetadataKey carries the spectator secret.
const SharedSecretMetadataKey = "x-arena-shared-secret"

// SharedSecretStreamInterceptor rejects streams that do not present secret,
// either under SharedSecretMetadataKey or as a bearer authorization.
func SharedSecretStreamInterceptor(secret string) grpclib.StreamServerInterceptor {
	normalized := strings.TrimSpace(secret)
	return func(srv any, ss grpclib.ServerStream, info *grpclib.StreamServerInfo, handler grpclib.StreamHandler) error {
		if normalized == "" {
			return status.Error(codes.Unauthenticated, "shared secret not configured")
		}
		md, ok := metadata.FromIncomingContext(ss.Context())
		if !ok {
			return status.Error(codes.Unauthenticated, "missing metadata")
		}
		candidate := extractSharedSecret(md)
		if candidate == "" {
			return status.Error(codes.Unauthenticated, "missing shared secret")
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(normalized)) != 1 {
			return status.Error(codes.Unauthenticated, "invalid shared secret")
		}
		return handler(srv, ss)
	}
}

func extractSharedSecret(md metadata.MD) string {
	for _, value := range md.Get(SharedSecretMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}

// ServerOptions returns the options for a spectator server, adding the
// interceptor when secret is set.
func ServerOptions(secret string) []grpclib.ServerOption {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	return []grpclib.ServerOption{grpclib.ChainStreamInterceptor(SharedSecretStreamInterceptor(secret))}
}
