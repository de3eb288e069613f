package schema

import (
	"fmt"
	"reflect"
	"unicode"
)

// tagIndex maps column names to struct field indices. A field binds to the
// column named by its `db` tag, or to the snake_case form of its name when
// untagged. Fields tagged `db:"-"` never bind.
func tagIndex(typ reflect.Type) map[string]int {
	idx := make(map[string]int, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		tag := field.Tag.Get("db")
		if tag == "-" {
			continue
		}
		if tag != "" {
			idx[tag] = i
			continue
		}
		idx[toSnakeCase(field.Name)] = i
	}
	return idx
}

// New returns a pointer to a zero value of the entity's struct type.
func (e *Entity) New() interface{} {
	return reflect.New(e.typ).Interface()
}

// SetColumn assigns v to the struct field bound to the named column.
// Instance must be a pointer to the entity's struct type.
func (e *Entity) SetColumn(instance interface{}, column string, v interface{}) error {
	idx, ok := e.fieldByCol[column]
	if !ok {
		return fmt.Errorf("entity %q has no column %q", e.Name, column)
	}
	return e.setField(instance, idx, v)
}

// SetByTag assigns v to the struct field whose db tag (or snake_case name)
// matches tag. It reports false when no such field exists; annotation values
// land through here so an undeclared landing field is not an error.
func (e *Entity) SetByTag(instance interface{}, tag string, v interface{}) (bool, error) {
	idx, ok := e.fieldByTag[tag]
	if !ok {
		return false, nil
	}
	if err := e.setField(instance, idx, v); err != nil {
		return false, err
	}
	return true, nil
}

// ColumnValue reads the value of the struct field bound to the named column.
// Pointer fields are dereferenced; a nil pointer reads as nil.
func (e *Entity) ColumnValue(instance interface{}, column string) (interface{}, error) {
	idx, ok := e.fieldByCol[column]
	if !ok {
		return nil, fmt.Errorf("entity %q has no column %q", e.Name, column)
	}
	sv, err := e.structValue(instance)
	if err != nil {
		return nil, err
	}
	field := sv.Field(idx)
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil, nil
		}
		field = field.Elem()
	}
	return field.Interface(), nil
}

// SetRelation stores a related instance (or nil) into the relation's struct
// field.
func (e *Entity) SetRelation(instance interface{}, rel *Relation, related interface{}) error {
	sv, err := e.structValue(instance)
	if err != nil {
		return err
	}
	field := sv.FieldByName(rel.Field)
	if !field.IsValid() {
		return fmt.Errorf("entity %q has no field %q", e.Name, rel.Field)
	}
	if related == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	rv := reflect.ValueOf(related)
	if !rv.Type().AssignableTo(field.Type()) {
		return fmt.Errorf("entity %q relation %q: cannot assign %T", e.Name, rel.Name, related)
	}
	field.Set(rv)
	return nil
}

// RelationValue returns the instance currently attached to rel's field, or
// nil when the slot is empty.
func (e *Entity) RelationValue(instance interface{}, rel *Relation) (interface{}, error) {
	sv, err := e.structValue(instance)
	if err != nil {
		return nil, err
	}
	field := sv.FieldByName(rel.Field)
	if !field.IsValid() {
		return nil, fmt.Errorf("entity %q has no field %q", e.Name, rel.Field)
	}
	if field.Kind() == reflect.Ptr && field.IsNil() {
		return nil, nil
	}
	return field.Interface(), nil
}

func (e *Entity) setField(instance interface{}, idx int, v interface{}) error {
	sv, err := e.structValue(instance)
	if err != nil {
		return err
	}
	field := sv.Field(idx)
	if err := setValue(field, v); err != nil {
		return fmt.Errorf("entity %q field %q: %w", e.Name, e.typ.Field(idx).Name, err)
	}
	return nil
}

func (e *Entity) structValue(instance interface{}) (reflect.Value, error) {
	rv := reflect.ValueOf(instance)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Type() != e.typ {
		return reflect.Value{}, fmt.Errorf("instance must be a non-nil *%s", e.typ)
	}
	return rv.Elem(), nil
}

func setValue(field reflect.Value, v interface{}) error {
	if v == nil {
		field.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	ft := field.Type()

	if rv.Type().AssignableTo(ft) {
		field.Set(rv)
		return nil
	}
	if convertible(rv.Type(), ft) {
		field.Set(rv.Convert(ft))
		return nil
	}
	if ft.Kind() == reflect.Ptr {
		elem := ft.Elem()
		if rv.Type().AssignableTo(elem) {
			p := reflect.New(elem)
			p.Elem().Set(rv)
			field.Set(p)
			return nil
		}
		if convertible(rv.Type(), elem) {
			p := reflect.New(elem)
			p.Elem().Set(rv.Convert(elem))
			field.Set(p)
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %s", v, ft)
}

// convertible limits reflect conversions to like-kinded values so an int64
// never silently converts into a string field.
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	return numericKind(from.Kind()) && numericKind(to.Kind()) ||
		from.Kind() == reflect.String && to.Kind() == reflect.String
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func toSnakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				result = append(result, '_')
			}
			result = append(result, unicode.ToLower(r))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
