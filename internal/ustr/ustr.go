// Package ustr provides the immutable byte-string type used for process
// names, working directories, and other short kernel-owned strings. It
// avoids the heap churn of repeated Go string conversions on paths that
// are built one path component at a time.
package ustr

// Ustr is an immutable sequence of bytes.
type Ustr []uint8

// Mk creates an empty Ustr.
func Mk() Ustr {
	return Ustr{}
}

// MkRoot returns a Ustr for the root directory "/".
func MkRoot() Ustr {
	return Ustr("/")
}

// FromSlice truncates buf at its first NUL byte, for converting a
// user-supplied C-style string into a Ustr.
func FromSlice(buf []uint8) Ustr {
	for i, b := range buf {
		if b == 0 {
			return buf[:i]
		}
	}
	return buf
}

// Eq reports whether us and s contain identical bytes.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// IsAbsolute reports whether the path begins with '/'.
func (us Ustr) IsAbsolute() bool {
	return len(us) > 0 && us[0] == '/'
}

// Extend appends '/' and p, returning the combined path. The receiver is
// not mutated.
func (us Ustr) Extend(p Ustr) Ustr {
	tmp := make(Ustr, len(us), len(us)+1+len(p))
	copy(tmp, us)
	tmp = append(tmp, '/')
	return append(tmp, p...)
}

// ExtendStr is Extend with a Go string argument.
func (us Ustr) ExtendStr(p string) Ustr {
	return us.Extend(Ustr(p))
}

// String converts the Ustr to a Go string for formatting and logging.
func (us Ustr) String() string {
	return string(us)
}
