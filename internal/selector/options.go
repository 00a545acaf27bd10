package selector

// Method selects how a relation is loaded.
type Method int

const (
	// MethodDefault picks the relation type's default.
	MethodDefault Method = iota
	// MethodInload joins the relation into its parent's statement.
	MethodInload
	// MethodPostload loads the relation with a follow-up query keyed by parent values.
	MethodPostload
)

func (m Method) String() string {
	switch m {
	case MethodInload:
		return "inload"
	case MethodPostload:
		return "postload"
	}
	return "default"
}

type loadOptions struct {
	method Method
	alias  string
}

// Option configures one With call
type Option func(*loadOptions)

// Inload joins the relation into the parent query.
func Inload() Option {
	return func(o *loadOptions) { o.method = MethodInload }
}

// Postload loads the relation with a separate IN query.
func Postload() Option {
	return func(o *loadOptions) { o.method = MethodPostload }
}

// Alias overrides the table alias used for the relation.
func Alias(alias string) Option {
	return func(o *loadOptions) { o.alias = alias }
}
