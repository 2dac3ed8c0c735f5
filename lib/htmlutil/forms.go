package htmlutil

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// helpers for pulling sso handshake state (hidden inputs, saml
// payloads, frame redirects) out of pages that were never meant to be
// machine read. all of them return empty strings when the element is
// missing, the caller decides whether that is fatal.

func FormAction(doc *goquery.Document) string {
	return doc.Find("form").First().AttrOr("action", "")
}

func InputValue(doc *goquery.Document, name string) string {
	return doc.Find("input[name=" + name + "]").First().AttrOr("value", "")
}

// saml responses are sometimes carried in a textarea body instead of
// an input value attribute
func TextareaValue(doc *goquery.Document, name string) string {
	sel := doc.Find("textarea[name=" + name + "]").First()
	if len(sel.Nodes) == 0 {
		return ""
	}
	return sel.Text()
}

func FrameSrc(doc *goquery.Document) string {
	return doc.Find("frameset frame").First().AttrOr("src", "")
}

var scriptUrlRegex = regexp.MustCompile(`= '(.*)';`)

// extracts an sso target url embedded in an inline script as a
// single-quoted string literal assignment
func ScriptSsoUrl(doc *goquery.Document) string {
	for _, script := range doc.Find("script").Nodes {
		groups := scriptUrlRegex.FindStringSubmatch(GetText(script))
		if len(groups) < 2 {
			continue
		}
		return groups[1]
	}
	return ""
}

type SamlRequestForm struct {
	Action      string
	SamlRequest string
	RelayState  string
}

func ExtractSamlRequestForm(doc *goquery.Document) SamlRequestForm {
	return SamlRequestForm{
		Action:      FormAction(doc),
		SamlRequest: InputValue(doc, "SAMLRequest"),
		RelayState:  InputValue(doc, "RelayState"),
	}
}

type SamlResponseForm struct {
	Action       string
	SamlResponse string
	RelayState   string
}

func ExtractSamlResponseForm(doc *goquery.Document) SamlResponseForm {
	return SamlResponseForm{
		Action:       FormAction(doc),
		SamlResponse: InputValue(doc, "SAMLResponse"),
		RelayState:   InputValue(doc, "RelayState"),
	}
}

// the signature confirmation page carries its saml payload in
// textareas rather than hidden inputs
func ExtractSamlResponseTextareas(doc *goquery.Document) SamlResponseForm {
	return SamlResponseForm{
		Action:       FormAction(doc),
		SamlResponse: TextareaValue(doc, "SAMLResponse"),
		RelayState:   TextareaValue(doc, "RelayState"),
	}
}

type DummyForm struct {
	Action string
	Dummy  string
}

// the second acs hop redirects through a form whose only state is a
// field literally named "dummy"
func ExtractDummyForm(doc *goquery.Document) DummyForm {
	return DummyForm{
		Action: FormAction(doc),
		Dummy:  InputValue(doc, "dummy"),
	}
}
