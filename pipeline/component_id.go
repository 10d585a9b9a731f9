package pipeline

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// ComponentID identifies the code behind a step. For component steps it is
// the package path and type name of the activated instance; for inline
// handlers it is derived from the function symbol, e.g.
// ComponentID{Module: "github.com/acme/app", Type: "authorize.func1"}.
//
// Components with identical type names in different packages stay distinct.
type ComponentID struct {
	// Module is the full import path of the package declaring the component.
	Module string

	// Type is the type name, or the function name for inline handlers.
	Type string
}

// String returns "Module.Type".
func (id ComponentID) String() string {
	if id.Module == "" {
		return id.Type
	}
	return fmt.Sprintf("%s.%s", id.Module, id.Type)
}

// IsValid reports whether both Module and Type are populated.
func (id ComponentID) IsValid() bool {
	return id.Module != "" && id.Type != ""
}

// Equal reports whether id and other name the same component.
func (id ComponentID) Equal(other ComponentID) bool {
	return id.Module == other.Module && id.Type == other.Type
}

// ShortString keeps only the last element of the module path.
//
// Example: "github.com/acme/app/steps.Authorize" becomes "steps.Authorize"
func (id ComponentID) ShortString() string {
	if id.Module == "" {
		return id.Type
	}
	pkg := id.Module
	if i := strings.LastIndex(pkg, "/"); i >= 0 && i < len(pkg)-1 {
		pkg = pkg[i+1:]
	}
	return fmt.Sprintf("%s.%s", pkg, id.Type)
}

// IDOf returns the ComponentID for a type. Pointer types are identified by
// the type they point to. Unnamed types fall back to their string form.
func IDOf(t reflect.Type) ComponentID {
	if t == nil {
		return ComponentID{}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return ComponentID{Type: t.String()}
	}
	return ComponentID{Module: t.PkgPath(), Type: t.Name()}
}

// IDFor returns the ComponentID of C.
func IDFor[C any]() ComponentID {
	return IDOf(reflect.TypeFor[C]())
}

// funcID derives a ComponentID from a function's symbol name.
func funcID(fn any) ComponentID {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ComponentID{}
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ComponentID{Type: v.Type().String()}
	}
	return splitSymbol(f.Name())
}

// splitSymbol splits "github.com/acme/app.(*T).Run-fm" into the package path
// and the remainder.
func splitSymbol(name string) ComponentID {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return ComponentID{Type: name}
	}
	dot += slash + 1
	return ComponentID{Module: name[:dot], Type: name[dot+1:]}
}
