// Package codec implements the type-dispatched columnar codec: encoding a
// selected subset of an Arrow array's rows into an archive, and decoding
// them back. The supported type set is closed — any other logical type is
// ErrUnsupportedType, detected at dispatch time before any byte leaves the
// process.
package codec

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// Tag is the closed dispatch key for the supported logical types. Adding a
// type means adding a Tag constant and a case in every switch below — a
// compile-time enumeration extension, not a runtime surprise.
type Tag int

const (
	TagFloat64 Tag = iota
	TagFloat32
	TagInt64
	TagInt32
	TagUint64
	TagUint32
	TagLargeUTF8
	TagNull
	TagLargeListFloat64
	TagLargeListFloat32
	TagLargeListInt64
	TagLargeListInt32
	TagLargeListUint64
	TagLargeListUint32
)

// Classify maps an Arrow logical type to its dispatch Tag, or
// ErrUnsupportedType if the type falls outside the supported set.
func Classify(dt arrow.DataType) (Tag, error) {
	switch dt.ID() {
	case arrow.FLOAT64:
		return TagFloat64, nil
	case arrow.FLOAT32:
		return TagFloat32, nil
	case arrow.INT64:
		return TagInt64, nil
	case arrow.INT32:
		return TagInt32, nil
	case arrow.UINT64:
		return TagUint64, nil
	case arrow.UINT32:
		return TagUint32, nil
	case arrow.LARGE_STRING:
		return TagLargeUTF8, nil
	case arrow.NULL:
		return TagNull, nil
	case arrow.LARGE_LIST:
		lt, ok := dt.(*arrow.LargeListType)
		if !ok {
			return 0, fmt.Errorf("%w: %s", shuffleerr.ErrUnsupportedType, dt)
		}
		return classifyLargeList(lt.Elem())
	default:
		return 0, fmt.Errorf("%w: %s", shuffleerr.ErrUnsupportedType, dt)
	}
}

func classifyLargeList(elem arrow.DataType) (Tag, error) {
	switch elem.ID() {
	case arrow.FLOAT64:
		return TagLargeListFloat64, nil
	case arrow.FLOAT32:
		return TagLargeListFloat32, nil
	case arrow.INT64:
		return TagLargeListInt64, nil
	case arrow.INT32:
		return TagLargeListInt32, nil
	case arrow.UINT64:
		return TagLargeListUint64, nil
	case arrow.UINT32:
		return TagLargeListUint32, nil
	default:
		return 0, fmt.Errorf("%w: large_list<%s>", shuffleerr.ErrUnsupportedType, elem)
	}
}

// elemTag returns the fixed-width numeric tag for a large_list tag's element
// type. Only called with the six TagLargeList* tags.
func elemTag(listTag Tag) Tag {
	switch listTag {
	case TagLargeListFloat64:
		return TagFloat64
	case TagLargeListFloat32:
		return TagFloat32
	case TagLargeListInt64:
		return TagInt64
	case TagLargeListInt32:
		return TagInt32
	case TagLargeListUint64:
		return TagUint64
	case TagLargeListUint32:
		return TagUint32
	default:
		panic(fmt.Sprintf("elemTag: %d is not a large_list tag", listTag))
	}
}

func isLargeList(t Tag) bool {
	switch t {
	case TagLargeListFloat64, TagLargeListFloat32, TagLargeListInt64, TagLargeListInt32, TagLargeListUint64, TagLargeListUint32:
		return true
	default:
		return false
	}
}

// ValidateSchema checks that every field's type is in the supported set,
// without encoding anything. The partitioned drivers call this first, before
// splitting or shuffling anything, so an unsupported type fails before any
// network traffic. The drivers do not run the collective schema consistency
// check (schemacheck.Verify).
func ValidateSchema(schema *arrow.Schema) error {
	for _, f := range schema.Fields() {
		if _, err := Classify(f.Type); err != nil {
			return err
		}
	}
	return nil
}
