package project

// serviceClasses are DataModel services whose class can be inferred from a
// child's name when `$className` is omitted.
var serviceClasses = map[string]struct{}{
	"Workspace":              {},
	"Players":                {},
	"Lighting":               {},
	"MaterialService":        {},
	"ReplicatedFirst":        {},
	"ReplicatedStorage":      {},
	"ServerScriptService":    {},
	"ServerStorage":          {},
	"StarterGui":             {},
	"StarterPack":            {},
	"StarterPlayer":          {},
	"Teams":                  {},
	"SoundService":           {},
	"Chat":                   {},
	"TextChatService":        {},
	"HttpService":            {},
	"LocalizationService":    {},
	"TestService":            {},
	"VoiceChatService":       {},
	"CollectionService":      {},
	"PhysicsService":         {},
	"ProximityPromptService": {},
	"TweenService":           {},
	"VRService":              {},
}

// starterPlayerChildren are StarterPlayer's two special children whose class
// matches their name.
var starterPlayerChildren = map[string]struct{}{
	"StarterPlayerScripts":    {},
	"StarterCharacterScripts": {},
}

// InferClassName applies the manifest's class inference rules: a DataModel
// child named after a known service defaults to that service class, the two
// StarterPlayer specials default to their names, and Workspace.Terrain
// defaults to Terrain. Empty string means no inference applies.
func InferClassName(name, parentClass string) string {
	switch parentClass {
	case "DataModel":
		if _, ok := serviceClasses[name]; ok {
			return name
		}
	case "StarterPlayer":
		if _, ok := starterPlayerChildren[name]; ok {
			return name
		}
	case "Workspace":
		if name == "Terrain" {
			return "Terrain"
		}
	}
	return ""
}
