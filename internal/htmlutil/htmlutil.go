package htmlutil

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	ErrNoElement   = errors.New("no element matches selector")
	ErrNoAttribute = errors.New("element has no such attribute")
)

// Parse parses a raw HTML page.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Attr returns the attribute `attr` of the first element under sel matching selector.
func Attr(sel *goquery.Selection, selector, attr string) (string, error) {
	match := sel.Find(selector).First()
	if match.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	value, exists := match.Attr(attr)
	if !exists {
		return "", fmt.Errorf("%w: %s[%s]", ErrNoAttribute, selector, attr)
	}
	return value, nil
}

// Text returns the normalized text of the first element under sel matching selector.
func Text(sel *goquery.Selection, selector string) (string, error) {
	match := sel.Find(selector)
	if match.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return NormalizeText(GetText(match.Nodes[0])), nil
}

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText drops non printable characters, trims the ends and collapses
// inner runs of whitespace into a single space.
func NormalizeText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	return innerWhitespace.ReplaceAllString(s, " ")
}
