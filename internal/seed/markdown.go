package seed

import (
	"bufio"
	"io"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/knol"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	cardSeparator  = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

type qaCard struct {
	question, answer, context string
}

// ParseMarkdown reads Q:/A:/C: blocks. A block runs until the next prefix
// line, a "---" separator or the next Q:. Cards without a question are
// dropped. The key of each entry is derived from its question, so editing
// an answer keeps the card's progress.
func ParseMarkdown(r io.Reader) ([]domain.SeedEntry, error) {
	scanner := bufio.NewScanner(r)
	var cards []qaCard
	var current qaCard
	var block []string
	st := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch st {
		case readingQuestion:
			current.question = content
		case readingAnswer:
			current.answer = content
		case readingContext:
			current.context = content
		}
		block = nil
	}
	finishCard := func() {
		flushBlock()
		if current.question != "" {
			cards = append(cards, current)
		}
		current = qaCard{}
		st = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == cardSeparator {
			finishCard()
			continue
		}

		next, prefix := classify(line)
		if next == seeking {
			if st != seeking {
				block = append(block, line)
			}
			continue
		}

		flushBlock()
		if next == readingQuestion && st != seeking {
			finishCard()
		}
		st = next
		block = append(block, strings.TrimPrefix(line[len(prefix):], " "))
	}
	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	entries := make([]domain.SeedEntry, 0, len(cards))
	for _, c := range cards {
		answer := c.answer
		if c.context != "" {
			answer = strings.TrimSpace(answer + "\n\n" + c.context)
		}
		entries = append(entries, domain.SeedEntry{
			Key:      QuestionKey(c.question),
			Question: c.question,
			Answer:   answer,
		})
	}
	return entries, nil
}

func classify(line string) (state, string) {
	switch {
	case strings.HasPrefix(line, questionPrefix):
		return readingQuestion, questionPrefix
	case strings.HasPrefix(line, answerPrefix):
		return readingAnswer, answerPrefix
	case strings.HasPrefix(line, contextPrefix):
		return readingContext, contextPrefix
	}
	return seeking, ""
}

// QuestionKey is the card key of a question/answer card.
func QuestionKey(question string) string {
	h := knol.Hash(knol.Normalize(question))
	if len(h) < 16 {
		return ""
	}
	return h[:16]
}
