// Package fsname implements the escape that maps instance names onto legal
// filesystem names. The encoded form is what appears on disk; the decoded
// form is what appears in the instance tree and in serialized JSON.
package fsname

import "strings"

var encoder = strings.NewReplacer(
	"?", "%QUESTION%",
	":", "%COLON%",
	"/", "%SLASH%",
)

var decoder = strings.NewReplacer(
	"%QUESTION%", "?",
	"%COLON%", ":",
	"%SLASH%", "/",
)

// Encode turns an instance name into its on-disk form.
func Encode(name string) string {
	return encoder.Replace(name)
}

// Decode turns an on-disk name back into the instance name.
func Decode(name string) string {
	return decoder.Replace(name)
}
