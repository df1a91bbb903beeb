// Package badge содержит движок значков: закрытый набор критериев,
// их вычисление по снимку активности и учёт частичного прогресса.
//
// Новый критерий добавляется расширением Kind и switch в Evaluate,
// а не открытой диспетчеризацией по имени.
package badge

import (
	"fmt"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

const domainName = "badge"

// ══════════════════════════════════════════════════════════════════════════════
// CRITERION (tagged variant)
// ══════════════════════════════════════════════════════════════════════════════

// Kind - тег варианта критерия.
type Kind string

const (
	// KindReadCards - всего прочитанных карточек с пройденным тестом.
	KindReadCards Kind = "read_cards"

	// KindCorrectQuizAnswers - всего правильных ответов в квизах.
	KindCorrectQuizAnswers Kind = "correct_quiz_answers"

	// KindCompleteSubtopics - подтем, где просмотрены все карточки.
	KindCompleteSubtopics Kind = "complete_subtopics"

	// KindCompleteTopic - тем, где завершены все подтемы.
	KindCompleteTopic Kind = "complete_topic"

	// KindReadSpecificTopic - прочитанных карточек в конкретной теме.
	KindReadSpecificTopic Kind = "read_specific_topic"

	// KindQuizSpecificTopic - карточек с пройденным квизом в конкретной теме.
	KindQuizSpecificTopic Kind = "quiz_specific_topic"
)

// Kinds возвращает все известные теги.
func Kinds() []Kind {
	return []Kind{
		KindReadCards,
		KindCorrectQuizAnswers,
		KindCompleteSubtopics,
		KindCompleteTopic,
		KindReadSpecificTopic,
		KindQuizSpecificTopic,
	}
}

// IsKnown проверяет, что тег из закрытого набора.
func (k Kind) IsKnown() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// RequiresTopic - нужен ли варианту TopicID.
func (k Kind) RequiresTopic() bool {
	return k == KindReadSpecificTopic || k == KindQuizSpecificTopic
}

// Criterion - критерий значка: тег плюс полезная нагрузка варианта.
type Criterion struct {
	// Kind - тег варианта.
	Kind Kind

	// TopicID - тема для *_specific_topic, иначе пусто.
	TopicID string
}

// ReadCards создаёт критерий по прочитанным карточкам.
func ReadCards() Criterion { return Criterion{Kind: KindReadCards} }

// CorrectQuizAnswers создаёт критерий по правильным ответам.
func CorrectQuizAnswers() Criterion { return Criterion{Kind: KindCorrectQuizAnswers} }

// CompleteSubtopics создаёт критерий по завершённым подтемам.
func CompleteSubtopics() Criterion { return Criterion{Kind: KindCompleteSubtopics} }

// CompleteTopic создаёт критерий по завершённым темам.
func CompleteTopic() Criterion { return Criterion{Kind: KindCompleteTopic} }

// ReadSpecificTopic создаёт критерий по чтению конкретной темы.
func ReadSpecificTopic(topicID string) Criterion {
	return Criterion{Kind: KindReadSpecificTopic, TopicID: topicID}
}

// QuizSpecificTopic создаёт критерий по квизам конкретной темы.
func QuizSpecificTopic(topicID string) Criterion {
	return Criterion{Kind: KindQuizSpecificTopic, TopicID: topicID}
}

// Validate проверяет форму критерия. Ошибка - ошибка конфигурации данных.
func (c Criterion) Validate() error {
	if !c.Kind.IsKnown() {
		return shared.NewDomainError(domainName, "ValidateCriterion", shared.ErrInvalidCriterion,
			fmt.Sprintf("unknown criterion kind %q", c.Kind))
	}
	if c.Kind.RequiresTopic() && c.TopicID == "" {
		return shared.NewDomainError(domainName, "ValidateCriterion", shared.ErrInvalidCriterion,
			fmt.Sprintf("criterion %q requires a topic id", c.Kind))
	}
	return nil
}

// Evaluate вычисляет прогресс по снимку активности.
func (c Criterion) Evaluate(s ActivitySnapshot) (int, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}

	switch c.Kind {
	case KindReadCards:
		return nonNegative(s.ReadCards), nil
	case KindCorrectQuizAnswers:
		return nonNegative(s.CorrectQuizAnswers), nil
	case KindCompleteSubtopics:
		return s.CompletedSubtopics(), nil
	case KindCompleteTopic:
		return s.CompletedTopics(), nil
	case KindReadSpecificTopic:
		return nonNegative(s.Topics[c.TopicID].ReadCards), nil
	case KindQuizSpecificTopic:
		return nonNegative(s.Topics[c.TopicID].QuizPassedCards), nil
	}

	// Validate отсекает неизвестные теги; сюда попадаем только при рассинхроне Kinds и switch.
	return 0, shared.NewDomainError(domainName, "EvaluateCriterion", shared.ErrInvalidCriterion,
		fmt.Sprintf("no evaluator for criterion kind %q", c.Kind))
}

// String - для логов.
func (c Criterion) String() string {
	if c.TopicID != "" {
		return fmt.Sprintf("%s(%s)", c.Kind, c.TopicID)
	}
	return string(c.Kind)
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
