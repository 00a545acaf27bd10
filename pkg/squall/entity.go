// Package squall holds the types model packages import.
package squall

// Entity marks a struct as an entity. Embed it, optionally tagged with
// entity attributes:
//
//	type User struct {
//		squall.Entity `squall:"table:users;hidden:password"`
//
//		ID       int    `squall:"primary"`
//		Password string
//		Posts    []*Post `squall:"relation:has_many;inverse:author"`
//	}
//
// A struct embedding another entity inherits its declarations.
type Entity struct{}
