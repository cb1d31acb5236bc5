package helpers

import (
	"strings"

	"github.com/juju/errors"
)

// FoldErrors joins non-nil errors one per line, nil when there are none.
// Messages are taken verbatim, '%' in driver errors is not a format verb.
func FoldErrors(errs []error) error {
	var ss []string
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	if len(ss) == 0 {
		return nil
	}
	return errors.New(strings.Join(ss, "\n"))
}
