package command

import (
	"strings"
	"unicode"
)

// Intent is a recognized voice command.
type Intent struct {
	Phrase    string `json:"phrase"`
	Name      string `json:"name"`
	ActionTag string `json:"action_tag"`
}

// defaultPhrases maps spoken phrases to their action tag. The tag doubles
// as the intent name.
var defaultPhrases = map[string]string{
	"打开空调":    "CONTROL_AC",
	"播放音乐":    "PLAY_MUSIC",
	"暂停音乐":    "PAUSE_MUSIC",
	"调低音量":    "SET_VOLUME",
	"已注意道路":   "CONFIRM_ACTION",
	"已经注意道路":  "CONFIRM_ACTION",
	"打开音乐":    "PLAY_MUSIC",
	"关闭音乐":    "PAUSE_MUSIC",
	"打开导航":    "START_NAVIGATION",
	"导航到公司":   "START_NAVIGATION",
	"发送短信给刘阳": "SEND_MESSAGE",
	"显示诊断信息":  "VIEW_DIAGNOSTICS",
	"重置系统":    "RESET_SYSTEM",
	"今天天气怎么样": "GET_WEATHER",
	"讲个笑话":    "TELL_JOKE",
}

// variants maps common transcription slips to the phrase they stand for.
var variants = map[string]string{
	"已经注意到路": "已经注意道路",
	"已经注意到":  "已经注意道路",
	"已經注意道路": "已经注意道路",
	"已經注意到路": "已经注意道路",
	"已注意到路":  "已注意道路",
}

var canonical = func() map[string]string {
	m := make(map[string]string, len(variants))
	for v, c := range variants {
		m[Normalize(v)] = Normalize(c)
	}
	return m
}()

type Router struct {
	phrases map[string]string
}

func NewRouter() *Router {
	r := &Router{phrases: make(map[string]string, len(defaultPhrases))}
	for p, tag := range defaultPhrases {
		r.phrases[Normalize(p)] = tag
	}
	return r
}

// Add registers or overrides a phrase.
func (r *Router) Add(phrase, actionTag string) {
	r.phrases[Normalize(phrase)] = actionTag
}

// Route matches a transcribed utterance against the phrase table.
func (r *Router) Route(text string) (Intent, bool) {
	key := Canonical(text)
	tag, ok := r.phrases[key]
	if !ok || key == "" {
		return Intent{Phrase: strings.TrimSpace(text)}, false
	}
	return Intent{Phrase: key, Name: tag, ActionTag: tag}, true
}

// Canonical normalizes text and folds known variants onto their canonical
// phrase.
func Canonical(text string) string {
	key := Normalize(text)
	if c, ok := canonical[key]; ok {
		return c
	}
	return key
}

// Normalize drops whitespace and punctuation so transcriber noise like a
// trailing "。" still matches.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
