package schema

import (
	"fmt"
	"strings"

	"github.com/eleven-am/squall/internal/dbal"
)

// DeclaredTables returns every declared table. Without cascade the order is
// declaration order; with cascade every table follows the tables it depends
// on, ties going to fewer dependencies and then declaration order.
func (b *Builder) DeclaredTables(cascade bool) ([]*dbal.TableSchema, error) {
	tables := append([]*dbal.TableSchema(nil), b.tableOrder...)
	if !cascade {
		return tables, nil
	}
	return cascadeOrder(tables)
}

func cascadeOrder(tables []*dbal.TableSchema) ([]*dbal.TableSchema, error) {
	position := make(map[string]int, len(tables))
	for i, tbl := range tables {
		position[tbl.Key()] = i
	}

	// deps[i] are the positions table i waits on; dependents is the reverse edge
	deps := make([]map[int]bool, len(tables))
	dependents := make([][]int, len(tables))
	for i, tbl := range tables {
		deps[i] = make(map[int]bool)
		for _, name := range tbl.Dependencies() {
			j, ok := position[tbl.Database()+"/"+name]
			if !ok || j == i {
				continue
			}
			if !deps[i][j] {
				deps[i][j] = true
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	weight := make([]int, len(tables))
	pending := make([]int, len(tables))
	for i := range tables {
		weight[i] = len(deps[i])
		pending[i] = len(deps[i])
	}

	done := make([]bool, len(tables))
	sorted := make([]*dbal.TableSchema, 0, len(tables))
	for len(sorted) < len(tables) {
		next := -1
		for i := range tables {
			if done[i] || pending[i] > 0 {
				continue
			}
			if next == -1 || weight[i] < weight[next] {
				next = i
			}
		}
		if next == -1 {
			return nil, cycleError(tables, done)
		}

		done[next] = true
		sorted = append(sorted, tables[next])
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return sorted, nil
}

func cycleError(tables []*dbal.TableSchema, done []bool) error {
	var stuck []string
	for i, tbl := range tables {
		if !done[i] {
			stuck = append(stuck, tbl.Key())
		}
	}
	return &Error{
		Op:  "cascade",
		Err: fmt.Errorf("%w: %w between %s", ErrDDL, ErrCycle, strings.Join(stuck, ", ")),
	}
}
