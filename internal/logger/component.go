package logger

// Every entry carries the subsystem that wrote it under "component".
const (
	ComponentSchema    = "schema"
	ComponentMigration = "migration"
	ComponentParser    = "parser"
	ComponentSelector  = "selector"
	ComponentSQL       = "sql"
	ComponentDB        = "db"
	ComponentCLI       = "cli"
)

// For returns a logger tagged with component, bound to the logger installed
// at the time of the call.
func For(component string) Logger {
	return zapLogger{sugar: current().With("component", component)}
}

// Schema logs builder discovery, relation casting and table declaration.
func Schema() Logger { return For(ComponentSchema) }

// Migration logs table saves and atlas plans.
func Migration() Logger { return For(ComponentMigration) }

func Parser() Logger   { return For(ComponentParser) }
func Selector() Logger { return For(ComponentSelector) }

// SQL logs every statement the selector sends.
func SQL() Logger { return For(ComponentSQL) }

// DB logs connection lifecycle.
func DB() Logger  { return For(ComponentDB) }
func CLI() Logger { return For(ComponentCLI) }
