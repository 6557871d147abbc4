package style

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mnemocore/mnemocore/internal/store"
)

var formalGreetings = []string{"dear", "good morning", "good afternoon", "good evening", "greetings"}
var casualGreetings = []string{"hi", "hey", "yo", "sup", "hiya"}
var formalSignOffs = []string{"sincerely", "regards", "best regards", "kind regards", "yours truly", "respectfully"}
var casualSignOffs = []string{"thanks", "cheers", "talk soon", "later", "take care", "best"}

var contractionPattern = regexp.MustCompile(`\b\w+'(?:t|re|ve|ll|d|s|m)\b`)
var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

var positiveWords = map[string]bool{
	"great": true, "thanks": true, "thank": true, "awesome": true, "love": true,
	"happy": true, "glad": true, "excited": true, "appreciate": true, "wonderful": true,
	"good": true, "nice": true, "perfect": true, "excellent": true, "fantastic": true,
}
var negativeWords = map[string]bool{
	"bad": true, "angry": true, "upset": true, "frustrated": true, "annoyed": true,
	"hate": true, "terrible": true, "awful": true, "worried": true, "sorry": true,
	"disappointed": true, "concerned": true,
}

// ExtractUserStyle walks every message sent by the user and computes the
// global style profile (extraction).
func (s *Service) ExtractUserStyle(now int64) (*store.UserStyleProfile, error) {
	messages, err := s.sentMessages()
	if err != nil {
		return nil, err
	}
	profile := &store.UserStyleProfile{UpdatedAt: now}
	if len(messages) == 0 {
		return profile, nil
	}

	var totalLen, formalHits, casualHits, sentences, words, contractions int
	greetingCounts := map[string]int{}
	signOffCounts := map[string]int{}
	var emojiChars, totalChars int

	for _, m := range messages {
		body := m.BodyText
		totalLen += len(body)
		lower := strings.ToLower(body)

		for _, g := range formalGreetings {
			if strings.Contains(lower, g) {
				formalHits++
				greetingCounts[g]++
			}
		}
		for _, g := range casualGreetings {
			if matchesLeadingWord(lower, g) {
				casualHits++
				greetingCounts[g]++
			}
		}
		for _, so := range formalSignOffs {
			if strings.Contains(lower, so) {
				formalHits++
				signOffCounts[so]++
			}
		}
		for _, so := range casualSignOffs {
			if strings.Contains(lower, so) {
				casualHits++
				signOffCounts[so]++
			}
		}

		contractions += len(contractionPattern.FindAllString(body, -1))
		words += len(strings.Fields(body))
		sentences += len(sentenceSplit.Split(strings.TrimSpace(body), -1))

		for _, r := range body {
			totalChars++
			if isEmojiRune(r) {
				emojiChars++
			}
		}
	}

	n := float64(len(messages))
	avgSentenceLen := 0.0
	if sentences > 0 {
		avgSentenceLen = float64(words) / float64(sentences)
	}
	contractionRate := 0.0
	if words > 0 {
		contractionRate = float64(contractions) / float64(words)
	}
	formalityFromPhrases := float64(formalHits) / (float64(formalHits+casualHits) + 1)
	formalityFromLength := clamp01(avgSentenceLen / 20.0)
	formalityFromContractions := clamp01(1.0 - contractionRate*5)
	formality := clamp01((formalityFromPhrases + formalityFromLength + formalityFromContractions) / 3.0)

	profile.Formality = formality
	profile.Verbosity = clamp01(float64(totalLen) / n / 500.0)
	if totalChars > 0 {
		profile.EmojiDensity = float64(emojiChars) / float64(totalChars)
	}
	profile.AvgMessageLength = int(float64(totalLen) / n)
	profile.Greetings = topPhrases(greetingCounts, 5)
	profile.SignOffs = topPhrases(signOffCounts, 5)
	profile.Signatures = recurringTrailingLines(messages)
	profile.InteractionCount = len(messages)
	return profile, nil
}

// ExtractRecipientStyle profiles the user's messages to one entity:
// verbosity, emoji density, greetings, sign-offs, warmth and exemplar
// messages come from the user's sent messages, and response time pairs
// them with the entity's messages. Unlike ExtractUserStyle it computes no
// formality (Formality stays 0) and no signatures.
func (s *Service) ExtractRecipientStyle(entityID string, now int64) (*store.RecipientStyleProfile, error) {
	ids, err := s.store.MessagesByParticipant(entityID, 500)
	if err != nil {
		return nil, err
	}
	var sent, received []*store.Message
	for _, id := range ids {
		m, err := s.store.GetMessage(id)
		if err != nil {
			continue
		}
		if m.FromUser {
			sent = append(sent, m)
		} else {
			received = append(received, m)
		}
	}

	profile := &store.RecipientStyleProfile{EntityID: entityID, UpdatedAt: now}
	if len(sent) == 0 {
		return profile, nil
	}

	var totalLen, posHits, negHits, words int
	greetingCounts := map[string]int{}
	signOffCounts := map[string]int{}
	var emojiChars, totalChars int
	var examples []string

	for _, m := range sent {
		totalLen += len(m.BodyText)
		lower := strings.ToLower(m.BodyText)
		for _, w := range strings.Fields(lower) {
			w = strings.Trim(w, ".,!?;:\"'")
			words++
			if positiveWords[w] {
				posHits++
			}
			if negativeWords[w] {
				negHits++
			}
		}
		for _, g := range append(append([]string{}, formalGreetings...), casualGreetings...) {
			if strings.Contains(lower, g) {
				greetingCounts[g]++
			}
		}
		for _, so := range append(append([]string{}, formalSignOffs...), casualSignOffs...) {
			if strings.Contains(lower, so) {
				signOffCounts[so]++
			}
		}
		for _, r := range m.BodyText {
			totalChars++
			if isEmojiRune(r) {
				emojiChars++
			}
		}
		if len(examples) < 3 {
			examples = append(examples, m.BodyText)
		}
	}

	n := float64(len(sent))
	profile.Verbosity = clamp01(float64(totalLen) / n / 500.0)
	profile.AvgMessageLength = int(float64(totalLen) / n)
	profile.Greetings = topPhrases(greetingCounts, 3)
	profile.SignOffs = topPhrases(signOffCounts, 3)
	if totalChars > 0 {
		density := float64(emojiChars) / float64(totalChars)
		profile.EmojiDensity = density
		profile.EmojiUsage = density
	}
	if words > 0 {
		profile.Warmth = clamp01(float64(posHits-negHits)/float64(words)*10 + 0.5)
	}
	profile.AvgResponseTimeHours = averageResponseTimeHours(sent, received)
	profile.ExampleMessages = examples
	profile.MessageCount = len(sent) + len(received)
	return profile, nil
}

// sentMessages pulls every message sent by the user. Extraction re-runs
// periodically, driven by the background worker, not per-message, so a
// bounded bulk pull is fine here.
func (s *Service) sentMessages() ([]*store.Message, error) {
	return s.store.ListMessagesFromUser(2000)
}

func matchesLeadingWord(lower, word string) bool {
	trimmed := strings.TrimLeft(lower, " \t\n")
	return strings.HasPrefix(trimmed, word)
}

func topPhrases(counts map[string]int, limit int) []string {
	type kv struct {
		k string
		v int
	}
	var all []kv
	for k, v := range counts {
		all = append(all, kv{k, v})
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].v > all[i].v {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	var out []string
	for i := 0; i < len(all) && i < limit; i++ {
		out = append(out, all[i].k)
	}
	return out
}

// recurringTrailingLines finds the last non-empty line of each message
// and keeps the ones that recur across at least two messages, as a cheap
// stand-in for signature detection.
func recurringTrailingLines(messages []*store.Message) []string {
	counts := map[string]int{}
	for _, m := range messages {
		lines := strings.Split(strings.TrimSpace(m.BodyText), "\n")
		if len(lines) == 0 {
			continue
		}
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || len(last) > 60 {
			continue
		}
		counts[last]++
	}
	var out []string
	for line, n := range counts {
		if n >= 2 {
			out = append(out, line)
		}
	}
	return out
}

func averageResponseTimeHours(sent, received []*store.Message) float64 {
	if len(sent) == 0 || len(received) == 0 {
		return 0
	}
	var totalHours float64
	var pairs int
	for _, r := range received {
		var bestAfter int64 = -1
		for _, sm := range sent {
			if sm.Timestamp >= r.Timestamp && (bestAfter == -1 || sm.Timestamp < bestAfter) {
				bestAfter = sm.Timestamp
			}
		}
		if bestAfter >= 0 {
			totalHours += float64(bestAfter-r.Timestamp) / 3600.0
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return totalHours / float64(pairs)
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	}
	return unicode.Is(unicode.So, r) && r > 0x2000
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
