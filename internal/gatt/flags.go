package gatt

// Flag is a characteristic or descriptor capability, named as BlueZ names it
type Flag string

const (
	FlagRead   Flag = "read"
	FlagNotify Flag = "notify"
)

// Flags is an ordered set of capabilities
type Flags []Flag

// NewFlags builds a Flags set, dropping duplicates and keeping first-seen order
func NewFlags(flags ...Flag) Flags {
	result := make(Flags, 0, len(flags))
	for _, f := range flags {
		if !result.Has(f) {
			result = append(result, f)
		}
	}
	return result
}

func (f Flags) Has(flag Flag) bool {
	for _, x := range f {
		if x == flag {
			return true
		}
	}
	return false
}

func (f Flags) Strings() []string {
	result := make([]string, 0, len(f))
	for _, x := range f {
		result = append(result, string(x))
	}
	return result
}
