package codec

import (
	"reflect"
	"strings"
	"sync"

	"github.com/modern-go/reflect2"
)

// structInfo maps Avro record field names to struct field indices.
// A field's Avro name is its `avro:"name"` tag, or its Go name when
// untagged; lookup tries an exact match, then a case-insensitive one, and
// the first declared field wins a name claimed twice. Fields tagged
// `avro:"-"` are invisible to the codec.
type structInfo struct {
	byName  map[string]int
	byLower map[string]int
}

// structCache memoizes structInfo per struct type, keyed by the type's
// rtype word so lookups stay allocation-free on the hot path.
var structCache sync.Map // uintptr -> *structInfo

func cachedStructInfo(t reflect.Type) *structInfo {
	key := reflect2.Type2(t).RType()
	if cached, ok := structCache.Load(key); ok {
		return cached.(*structInfo)
	}

	info := &structInfo{
		byName:  make(map[string]int),
		byLower: make(map[string]int),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("avro"); ok {
			tag = strings.Split(tag, ",")[0]
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		if _, dup := info.byName[name]; !dup {
			info.byName[name] = i
		}
		lower := strings.ToLower(name)
		if _, dup := info.byLower[lower]; !dup {
			info.byLower[lower] = i
		}
	}

	structCache.Store(key, info)
	return info
}

// lookup resolves an Avro field name to a struct field index.
func (si *structInfo) lookup(name string) (int, bool) {
	if i, ok := si.byName[name]; ok {
		return i, true
	}
	if i, ok := si.byLower[strings.ToLower(name)]; ok {
		return i, true
	}
	return 0, false
}
