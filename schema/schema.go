// Package schema holds the declared metadata singlefetch needs to compile
// queries for an entity and to rebuild entity instances from JSON-decoded
// rows. Every entity is registered once with its table name, column kinds and
// relations; the rehydrator consults this table instead of inspecting Go
// types at runtime.
package schema

import (
	"fmt"
	"reflect"
	"sync"
)

// Kind classifies a column for SQL generation and for the coercion applied
// after a value has round-tripped through the database's JSON encoding.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
	Decimal
	UUID
	Date
	DateTime
	JSON
)

var kindNames = map[Kind]string{
	String:   "string",
	Int:      "int",
	Float:    "float",
	Bool:     "bool",
	Decimal:  "decimal",
	UUID:     "uuid",
	Date:     "date",
	DateTime: "datetime",
	JSON:     "json",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Column describes one database column of an entity.
type Column struct {
	Name       string
	Kind       Kind
	PrimaryKey bool
}

// Relation describes a to-one relation reachable from an entity. Column is
// the foreign-key column on this entity's table, Target the registered name
// of the related entity, and Field the Go struct field that receives the
// related instance (a pointer to the target's struct type).
type Relation struct {
	Name   string
	Column string
	Target string
	Field  string
}

// TargetEntity resolves the relation's target against the registry. Targets
// are resolved lazily so entities may be registered in any order.
func (r *Relation) TargetEntity() (*Entity, error) {
	e, ok := ByName(r.Target)
	if !ok {
		return nil, fmt.Errorf("relation %q: target entity %q is not registered", r.Name, r.Target)
	}
	return e, nil
}

// Entity is the declared description of one mapped struct type.
type Entity struct {
	// Name is the registry key. Defaults to Table.
	Name      string
	Table     string
	Columns   []Column
	Relations []Relation

	typ          reflect.Type
	colIdx       map[string]int
	fieldByCol   map[string]int
	fieldByTag   map[string]int
	relationIdx  map[string]int
	primaryIndex int
}

var (
	regMu     sync.RWMutex
	regByType = map[reflect.Type]*Entity{}
	regByName = map[string]*Entity{}
)

// MustRegister validates and registers an entity for the struct type of
// sample (a pointer to a struct value, e.g. &StoreProduct{}). It panics on an
// invalid declaration so registration mistakes surface at startup, and
// returns the registered entity for use when building queries.
func MustRegister(sample interface{}, e Entity) *Entity {
	ent, err := register(sample, e)
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return ent
}

func register(sample interface{}, e Entity) (*Entity, error) {
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("register %q: sample must be a pointer to a struct", e.Table)
	}
	typ := t.Elem()

	if e.Table == "" {
		return nil, fmt.Errorf("register %s: table name is required", typ)
	}
	if e.Name == "" {
		e.Name = e.Table
	}
	if len(e.Columns) == 0 {
		return nil, fmt.Errorf("register %q: at least one column is required", e.Name)
	}

	ent := e
	ent.typ = typ
	ent.colIdx = make(map[string]int, len(e.Columns))
	ent.fieldByCol = make(map[string]int, len(e.Columns))
	ent.fieldByTag = tagIndex(typ)
	ent.relationIdx = make(map[string]int, len(e.Relations))
	ent.primaryIndex = -1

	for i, col := range ent.Columns {
		if col.Name == "" {
			return nil, fmt.Errorf("register %q: column %d has no name", ent.Name, i)
		}
		if _, ok := ent.colIdx[col.Name]; ok {
			return nil, fmt.Errorf("register %q: duplicate column %q", ent.Name, col.Name)
		}
		ent.colIdx[col.Name] = i

		idx, ok := ent.fieldByTag[col.Name]
		if !ok {
			return nil, fmt.Errorf("register %q: no struct field maps to column %q", ent.Name, col.Name)
		}
		ent.fieldByCol[col.Name] = idx

		if col.PrimaryKey {
			if ent.primaryIndex >= 0 {
				return nil, fmt.Errorf("register %q: multiple primary key columns", ent.Name)
			}
			ent.primaryIndex = i
		}
	}
	if ent.primaryIndex < 0 {
		return nil, fmt.Errorf("register %q: no primary key column declared", ent.Name)
	}

	for i, rel := range ent.Relations {
		if rel.Name == "" || rel.Column == "" || rel.Target == "" || rel.Field == "" {
			return nil, fmt.Errorf("register %q: relation %d needs name, column, target and field", ent.Name, i)
		}
		if _, ok := ent.relationIdx[rel.Name]; ok {
			return nil, fmt.Errorf("register %q: duplicate relation %q", ent.Name, rel.Name)
		}
		if _, ok := ent.colIdx[rel.Column]; !ok {
			return nil, fmt.Errorf("register %q: relation %q references undeclared column %q", ent.Name, rel.Name, rel.Column)
		}
		f, ok := typ.FieldByName(rel.Field)
		if !ok {
			return nil, fmt.Errorf("register %q: relation %q references missing field %q", ent.Name, rel.Name, rel.Field)
		}
		if f.Type.Kind() != reflect.Ptr || f.Type.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("register %q: relation field %q must be a pointer to a struct", ent.Name, rel.Field)
		}
		ent.relationIdx[rel.Name] = i
	}

	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := regByName[ent.Name]; ok {
		return nil, fmt.Errorf("register %q: already registered", ent.Name)
	}
	regByType[typ] = &ent
	regByName[ent.Name] = &ent
	return &ent, nil
}

// ByName looks up a registered entity by its registry name.
func ByName(name string) (*Entity, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	e, ok := regByName[name]
	return e, ok
}

// ByType looks up the entity registered for a struct type.
func ByType(t reflect.Type) (*Entity, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	e, ok := regByType[t]
	return e, ok
}

// Type returns the Go struct type the entity was registered with.
func (e *Entity) Type() reflect.Type { return e.typ }

// PrimaryKey returns the declared primary key column.
func (e *Entity) PrimaryKey() *Column { return &e.Columns[e.primaryIndex] }

// Column returns the declared column with the given name.
func (e *Entity) Column(name string) (*Column, bool) {
	idx, ok := e.colIdx[name]
	if !ok {
		return nil, false
	}
	return &e.Columns[idx], true
}

// Relation returns the declared relation with the given name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	idx, ok := e.relationIdx[name]
	if !ok {
		return nil, false
	}
	return &e.Relations[idx], true
}
