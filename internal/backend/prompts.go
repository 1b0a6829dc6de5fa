package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/session"
)

// OpeningPrompt is sent to the model in place of an empty candidate message,
// which is how a client asks for the interviewer's greeting.
const OpeningPrompt = "Please greet the candidate and start the interview with the first question."

// FallbackReply replaces an empty model answer.
const FallbackReply = "I apologize, I didn't catch that. Could you please repeat?"

var personas = map[session.InterviewType][]string{
	session.Technical: {
		"You are a professional technical interviewer conducting a live audio interview.",
		"Speak clearly and naturally like a human on a call.",
		"Ask technical questions about programming, algorithms, data structures, and system design.",
		"Ask one question at a time and wait for the candidate's response.",
		"Give brief constructive feedback before moving to the next question.",
		"Keep responses concise and to the point.",
		"Do not give long explanations or hints unless asked.",
		"Do not mention AI, models, or prompts.",
		"End the interview politely when requested.",
	},
	session.Behavioral: {
		"You are a professional behavioral interviewer conducting a live audio interview.",
		"Speak clearly and naturally like a human on a call.",
		"Ask behavioral and situational questions about teamwork, leadership, conflict resolution, and problem-solving.",
		"Use the STAR method (Situation, Task, Action, Result) framework.",
		"Ask one question at a time and wait for the candidate's response.",
		"Give brief encouraging feedback before moving to the next question.",
		"Focus on soft skills, communication, and past experiences.",
		"Keep responses concise and professional.",
		"Do not mention AI, models, or prompts.",
		"End the interview politely when requested.",
	},
}

// SystemPrompt returns the interviewer instructions for typ. Unknown types
// get the technical persona. A positive duration is mentioned so the model
// can pace its questions.
func SystemPrompt(typ session.InterviewType, duration time.Duration) string {
	lines, ok := personas[typ]
	if !ok {
		lines = personas[session.Technical]
	}
	prompt := strings.Join(lines, " ")
	if mins := int(duration.Round(time.Minute) / time.Minute); mins > 0 {
		prompt += fmt.Sprintf(" The interview is scheduled for %d minutes; pace your questions accordingly.", mins)
	}
	return prompt
}
