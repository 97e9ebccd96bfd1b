package translateplugin

import (
	"strings"

	"golang.org/x/text/language"
)

// target is one of the supported translation targets.
type target struct {
	Code  string // code the backend expects
	Flag  string
	Label string
	Tag   language.Tag
}

var targets = []target{
	{Code: "ja", Flag: "🇯🇵", Label: "日本語", Tag: language.Japanese},
	{Code: "en", Flag: "🇬🇧", Label: "English", Tag: language.English},
	{Code: "zh-CN", Flag: "🇨🇳", Label: "简体中文", Tag: language.SimplifiedChinese},
	{Code: "zh-TW", Flag: "🇹🇼", Label: "繁體中文", Tag: language.TraditionalChinese},
	{Code: "ko", Flag: "🇰🇷", Label: "한국어", Tag: language.Korean},
	{Code: "fr", Flag: "🇫🇷", Label: "Français", Tag: language.French},
	{Code: "de", Flag: "🇩🇪", Label: "Deutsch", Tag: language.German},
	{Code: "es", Flag: "🇪🇸", Label: "Español", Tag: language.Spanish},
}

// English names accepted in place of a code. language.Parse only takes
// BCP 47 tags, so plain names need their own lookup.
var namedCodes = map[string]string{
	"japanese": "ja",
	"english":  "en",
	"chinese":  "zh-CN",
	"korean":   "ko",
	"french":   "fr",
	"german":   "de",
	"spanish":  "es",
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(targets))
	for i, t := range targets {
		tags[i] = t.Tag
	}
	return language.NewMatcher(tags)
}()

// findTarget resolves a user-supplied language token to a supported
// target. It accepts the exact codes plus anything x/text can match
// ("japanese", "zh", "en-US", ...).
func findTarget(tok string) (target, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return target{}, false
	}
	if code, ok := namedCodes[strings.ToLower(tok)]; ok {
		tok = code
	}
	for _, t := range targets {
		if strings.EqualFold(t.Code, tok) || t.Label == tok {
			return t, true
		}
	}
	tag, err := language.Parse(tok)
	if err != nil {
		return target{}, false
	}
	_, idx, conf := matcher.Match(tag)
	if conf < language.High {
		return target{}, false
	}
	return targets[idx], true
}
