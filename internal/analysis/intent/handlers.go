package intent

import (
	"fmt"
	"strings"
)

const helpReply = "I'm your AI assistant! I can help with various tasks like telling the time, sharing jokes, providing information, and more. Just ask me a question or give me a command."

var greetingReplies = []string{
	"Hello! How can I assist you today?",
	"Hi there! What can I do for you?",
	"Greetings! How may I help you?",
	"Hey! What can I help you with?",
}

var weatherReplies = []string{
	"I don't have access to real weather data right now, but I can suggest checking a weather app or website.",
	"For accurate weather information, I recommend checking your local weather service.",
	"I'm unable to provide weather data at the moment, but it seems like a nice day!",
}

var jokeReplies = []string{
	"Why don't scientists trust atoms? Because they make up everything!",
	"Why did the scarecrow win an award? He was outstanding in his field!",
	"Why don't eggs tell jokes? They'd crack each other up!",
	"What do you call a fake noodle? An impasta!",
	"Why did the math book look so sad? Because it had too many problems.",
}

var musicReplies = []string{
	"I'm starting to play some music for you now.",
	"Playing your requested music.",
	"I'll queue up some music for you.",
	"Now playing music as requested.",
}

// generalTemplates 中的 %s 会替换为用户原始输入；最后一条不带输入。
var generalTemplates = []string{
	`I understand you're asking about "%s". How can I assist you further?`,
	`Thanks for your input: "%s". Is there something specific you'd like help with?`,
	`I've received your message about "%s". How can I be of service?`,
	"I'm here to help with various tasks. Could you provide more details about what you need?",
}

// Pool 返回某个意图的候选回复副本，未使用固定池的意图返回 nil。
func Pool(name Name) []string {
	var pool []string
	switch name {
	case Greeting:
		pool = greetingReplies
	case Weather:
		pool = weatherReplies
	case Joke:
		pool = jokeReplies
	case Music:
		pool = musicReplies
	default:
		return nil
	}
	return append([]string(nil), pool...)
}

// HelpReply 返回固定的能力介绍。
func HelpReply() string {
	return helpReply
}

// GeneralReplies 返回针对 original 的全部可能兜底回复。
func GeneralReplies(original string) []string {
	text := strings.TrimSpace(original)
	replies := make([]string, 0, len(generalTemplates))
	for _, tmpl := range generalTemplates {
		if strings.Contains(tmpl, "%s") {
			replies = append(replies, fmt.Sprintf(tmpl, text))
			continue
		}
		replies = append(replies, tmpl)
	}
	return replies
}

func (c *Catalog) poolHandler(pool []string) Handler {
	return func(Utterance) string {
		return pool[c.pick(len(pool))]
	}
}

func (c *Catalog) respondTime(Utterance) string {
	return "The current time is " + c.now().Format("15:04") + "."
}

func (c *Catalog) respondDate(Utterance) string {
	return "Today's date is " + c.now().Format("Monday, January 2, 2006") + "."
}

func (c *Catalog) respondGeneral(in Utterance) string {
	tmpl := generalTemplates[c.pick(len(generalTemplates))]
	if !strings.Contains(tmpl, "%s") {
		return tmpl
	}
	return fmt.Sprintf(tmpl, strings.TrimSpace(in.Original))
}
