package grow

import "regexp"

// Filter selects the files offered to the editor. A path is accepted when it
// matches at least one include and no exclude.
type Filter struct {
	includes []*regexp.Regexp
	excludes []*regexp.Regexp
}

// NewFilter compiles include and exclude patterns.
func NewFilter(includes, excludes []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range includes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		f.includes = append(f.includes, re)
	}
	for _, p := range excludes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		f.excludes = append(f.excludes, re)
	}
	return f, nil
}

// DefaultFilter offers content and static files, hiding anything whose path
// has a segment starting with "_" or ".".
func DefaultFilter() *Filter {
	return &Filter{
		includes: []*regexp.Regexp{regexp.MustCompile(`^/(content|static)`)},
		excludes: []*regexp.Regexp{regexp.MustCompile(`/[_.]`)},
	}
}

// Matches reports whether p passes the filter.
func (f *Filter) Matches(p string) bool {
	included := len(f.includes) == 0
	for _, re := range f.includes {
		if re.MatchString(p) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, re := range f.excludes {
		if re.MatchString(p) {
			return false
		}
	}
	return true
}
