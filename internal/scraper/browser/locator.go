package browser

import (
	"fmt"
	"strconv"

	"github.com/go-rod/rod"
)

// Strategy is how a Locator's value is interpreted.
type Strategy string

const (
	ByID    Strategy = "id"
	ByName  Strategy = "name"
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// Locator identifies an element independently of the frame it lives in.
type Locator struct {
	Strategy Strategy
	Value    string
}

func ID(v string) Locator    { return Locator{Strategy: ByID, Value: v} }
func Name(v string) Locator  { return Locator{Strategy: ByName, Value: v} }
func CSS(v string) Locator   { return Locator{Strategy: ByCSS, Value: v} }
func XPath(v string) Locator { return Locator{Strategy: ByXPath, Value: v} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// query converts the locator into something rod can evaluate. Ids and names go
// through attribute selectors so values with dots or brackets stay valid.
func (l Locator) query() (q string, isXPath bool) {
	switch l.Strategy {
	case ByID:
		return "[id=" + strconv.Quote(l.Value) + "]", false
	case ByName:
		return "[name=" + strconv.Quote(l.Value) + "]", false
	case ByXPath:
		return l.Value, true
	default:
		return l.Value, false
	}
}

// Find probes page once, without waiting. A missing element is reported as
// found=false with a nil error; err is reserved for protocol failures.
func (l Locator) Find(page *rod.Page) (*rod.Element, bool, error) {
	q, isXPath := l.query()

	var (
		found bool
		el    *rod.Element
		err   error
	)
	if isXPath {
		found, el, err = page.HasX(q)
	} else {
		found, el, err = page.Has(q)
	}
	if err != nil {
		return nil, false, err
	}
	return el, found, nil
}

// Chain is an ordered list of fallbacks for the same logical control. The
// first locator that resolves wins.
type Chain []Locator

func (c Chain) String() string {
	s := ""
	for i, l := range c {
		if i > 0 {
			s += " | "
		}
		s += l.String()
	}
	return s
}
