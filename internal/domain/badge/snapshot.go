package badge

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// ActivitySnapshot - накопленная активность пользователя на момент оценки.
// Считается слоем контента и передаётся в движок; движок её не хранит.
type ActivitySnapshot struct {
	// ReadCards - прочитанные карточки с пройденным тестом.
	ReadCards int

	// CorrectQuizAnswers - всего правильных ответов в квизах.
	CorrectQuizAnswers int

	// Subtopics - прогресс по подтемам.
	Subtopics []SubtopicActivity

	// Topics - активность по темам (ключ - TopicID).
	Topics map[string]TopicActivity
}

// SubtopicActivity - просмотр карточек одной подтемы.
type SubtopicActivity struct {
	SubtopicID  string
	TopicID     string
	ViewedCards int
	TotalCards  int
}

// Complete - все карточки подтемы просмотрены. Пустая подтема не считается завершённой.
func (s SubtopicActivity) Complete() bool {
	return s.TotalCards > 0 && s.ViewedCards >= s.TotalCards
}

// TopicActivity - активность внутри одной темы.
type TopicActivity struct {
	// ReadCards - прочитанные карточки темы с пройденным тестом.
	ReadCards int

	// QuizPassedCards - различные карточки темы с пройденным квизом.
	QuizPassedCards int
}

// CompletedSubtopics считает завершённые подтемы (дубликаты по SubtopicID учитываются один раз).
func (s ActivitySnapshot) CompletedSubtopics() int {
	seen := make(map[string]bool, len(s.Subtopics))
	n := 0
	for _, st := range s.Subtopics {
		if seen[st.SubtopicID] {
			continue
		}
		seen[st.SubtopicID] = true
		if st.Complete() {
			n++
		}
	}
	return n
}

// CompletedTopics считает темы, у которых завершены все подтемы.
func (s ActivitySnapshot) CompletedTopics() int {
	complete := make(map[string]bool)
	for _, st := range s.Subtopics {
		if st.TopicID == "" {
			continue
		}
		prev, ok := complete[st.TopicID]
		if !ok {
			prev = true
		}
		complete[st.TopicID] = prev && st.Complete()
	}

	n := 0
	for _, done := range complete {
		if done {
			n++
		}
	}
	return n
}
