package filter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BannedKeywords 默认的敏感词列表，仅作为占位的内容安全手段
var BannedKeywords = []string{
	"violence", "murder", "anger", "hate",
	"explicit", "adult", "sexual", "scary",
	"blood", "curse", "profanity",
}

// Filter 按整词、不区分大小写匹配敏感词，整句删除命中的句子
type Filter struct {
	keywords []string
	pattern  *regexp.Regexp
}

// New 用给定敏感词创建过滤器，空词会被忽略
func New(keywords ...string) *Filter {
	f := &Filter{}
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		f.keywords = append(f.keywords, k)
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	if len(quoted) > 0 {
		// RE2 的 \b 只认 ASCII 单词字符，这里用 Unicode 字母数字界定整词
		f.pattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}_])`)
	}
	return f
}

var defaultFilter = New(BannedKeywords...)

// Apply 使用默认敏感词过滤文本
func Apply(text string) string {
	return defaultFilter.Apply(text)
}

// Keywords 返回过滤器使用的敏感词
func (f *Filter) Keywords() []string {
	out := make([]string, len(f.keywords))
	copy(out, f.keywords)
	return out
}

// Apply 删除包含敏感词的句子，剩余句子保持原顺序并以单个空格拼接
func (f *Filter) Apply(text string) string {
	sentences := SplitSentences(text)
	kept := sentences[:0]
	for _, s := range sentences {
		if f.Matches(s) {
			continue
		}
		kept = append(kept, s)
	}
	return strings.Join(kept, " ")
}

// Matches 判断句子是否包含任一敏感词
func (f *Filter) Matches(sentence string) bool {
	if f.pattern == nil {
		return false
	}
	return f.pattern.MatchString(sentence)
}

// SplitSentences 在 . ! ? 后跟空白处断句，空白本身被丢弃，空句子不返回
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i
		for i < len(text) {
			next, n := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(next) {
				break
			}
			i += n
		}
		if i == end {
			continue
		}
		sentences = appendSentence(sentences, text[start:end])
		start = i
	}
	return appendSentence(sentences, text[start:])
}

func appendSentence(sentences []string, s string) []string {
	if strings.TrimSpace(s) == "" {
		return sentences
	}
	return append(sentences, s)
}
