package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/mailru/easyjson/jwriter"
)

// Locator finds elements in the page.
type Locator struct {
	by    string
	value string
}

// ByID locates elements by their id attribute.
func ByID(id string) Locator { return Locator{by: "id", value: id} }

// ByTagName locates elements by tag name.
func ByTagName(name string) Locator { return Locator{by: "tagName", value: name} }

// ByClassName locates elements by a single class name.
func ByClassName(name string) Locator { return Locator{by: "className", value: name} }

// ByCSS locates elements matching a CSS selector.
func ByCSS(selector string) Locator { return Locator{by: "css", value: selector} }

// ParseLocator parses locators written as "<kind>=<value>", where kind is
// one of id, tag, class or css, e.g. "id=lat-value".
func ParseLocator(s string) (Locator, error) {
	kind, value, ok := strings.Cut(s, "=")
	if !ok {
		return Locator{}, fmt.Errorf("invalid locator %q: want <kind>=<value>", s)
	}

	var l Locator
	switch strings.TrimSpace(kind) {
	case "id":
		l = ByID(value)
	case "tag":
		l = ByTagName(value)
	case "class":
		l = ByClassName(value)
	case "css":
		l = ByCSS(value)
	default:
		return Locator{}, fmt.Errorf("invalid locator %q: unknown kind %q", s, kind)
	}

	return l, l.Validate()
}

// MarshalText implements encoding.TextMarshaler.
func (l Locator) MarshalText() ([]byte, error) {
	kinds := map[string]string{"id": "id", "tagName": "tag", "className": "class", "css": "css"}
	return []byte(kinds[l.by] + "=" + l.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseLocator.
func (l *Locator) UnmarshalText(text []byte) error {
	parsed, err := ParseLocator(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Locator) String() string {
	return "By." + l.by + ": " + l.value
}

// Selector returns the CSS selector equivalent to l.
func (l Locator) Selector() string {
	switch l.by {
	case "id":
		return "[id=" + jsString(l.value) + "]"
	case "className":
		return "." + l.value
	default:
		return l.value
	}
}

// Validate rejects locators that can't match anything, so that mistakes
// show up as errors instead of wait timeouts.
func (l Locator) Validate() error {
	if strings.TrimSpace(l.value) == "" {
		return fmt.Errorf("invalid locator %s: empty value", l)
	}
	if l.by == "className" && strings.ContainsAny(l.value, " \t\n") {
		return errors.New("invalid locator " + l.String() + ": compound class names are not permitted")
	}
	if _, err := cascadia.Compile(l.Selector()); err != nil {
		return fmt.Errorf("invalid locator %s: %w", l, err)
	}

	return nil
}

// query returns a JS expression evaluating to the first matching element or
// null.
func (l Locator) query() string {
	return "document.querySelector(" + jsString(l.Selector()) + ")"
}

// jsString quotes s as a JS (JSON) string literal.
func jsString(s string) string {
	var w jwriter.Writer
	w.String(s)
	b, _ := w.BuildBytes()
	return string(b)
}
