package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// ControlDoc describes one input binding and the command field it drives.
type ControlDoc struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Shortcut    string `json:"shortcut,omitempty"`
	Touch       string `json:"touch,omitempty"`
	Field       string `json:"field"`
}

// defaultControlDocs matches the bindings of the browser client in the static
// bundle. Field names the playerInput property each control writes.
var defaultControlDocs = []ControlDoc{
	{
		ID:          "rotate-left",
		Label:       "Turn Left",
		Description: "Rotate the tank counter-clockwise around the local up axis.",
		Shortcut:    "A, Arrow Left",
		Touch:       "Left joystick",
		Field:       "rotate=-1",
	},
	{
		ID:          "rotate-right",
		Label:       "Turn Right",
		Description: "Rotate the tank clockwise around the local up axis.",
		Shortcut:    "D, Arrow Right",
		Touch:       "Left joystick",
		Field:       "rotate=1",
	},
	{
		ID:          "forward",
		Label:       "Forward",
		Description: "Thrust along the heading, tangent to the planet surface.",
		Shortcut:    "W, Arrow Up",
		Touch:       "Right joystick",
		Field:       "move=1",
	},
	{
		ID:          "reverse",
		Label:       "Reverse",
		Description: "Thrust against the heading.",
		Shortcut:    "S, Arrow Down",
		Touch:       "Right joystick",
		Field:       "move=-1",
	},
	{
		ID:          "shoot",
		Label:       "Fire",
		Description: "Launch a shell from the turret. Shells fall back under gravity and leave a crater.",
		Shortcut:    "Space",
		Touch:       "Tap outside the joysticks",
		Field:       "shoot=true",
	},
}

// controlDocsHandler serves the bindings sorted by label.
func controlDocsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	docs := append([]ControlDoc(nil), defaultControlDocs...)
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Label == docs[j].Label {
			return strings.Compare(docs[i].ID, docs[j].ID) < 0
		}
		return strings.Compare(docs[i].Label, docs[j].Label) < 0
	})
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(docs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
