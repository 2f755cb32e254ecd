package prompt

import (
	"strings"

	"doc-chat-be/pkg/llm"
)

const baseInstruction = "你是一个用于问答任务的助手。\n" +
	"如果我问你关于上下文或历史对话的信息，你可以从聊天历史中收集信息来回答。\n" +
	"如果你不知道答案，请直接说你不知道。\n" +
	"保持回答简洁，回答时必须使用markdown格式。"

const retrievalInstruction = "你是一个用于问答任务的助手。\n" +
	"使用以下检索到的上下文或对话历史来回答问题。\n" +
	"如果你不知道答案，请直接说你不知道。\n" +
	"回答必须使用markdown格式，并且保持回答简洁。"

const contextualizeInstruction = "给定一个聊天历史和最新的用户问题，该问题可能引用了聊天历史中的上下文，\n" +
	"将其重新表述为一个独立的问题，使其在没有聊天历史的情况下也能被理解。\n" +
	"不要回答这个问题，只需在需要时重新表述，否则原样返回。"

// ContextSeparator joins retrieved chunk texts.
const ContextSeparator = "\n\n"

// BaseSystem is the system prompt for turns without retrieval.
func BaseSystem() string {
	return baseInstruction
}

// ContextualizeSystem asks the model to rewrite the latest question as a standalone one.
func ContextualizeSystem() string {
	return contextualizeInstruction
}

// RetrievalSystem appends the retrieved chunk texts to the retrieval instruction.
func RetrievalSystem(contexts []string) string {
	var prompt strings.Builder
	prompt.WriteString(retrievalInstruction)
	prompt.WriteString("\n\n")
	prompt.WriteString(strings.Join(contexts, ContextSeparator))
	return prompt.String()
}

// Compose lays out system prompt, prior history and the user input as one message list.
func Compose(system string, history []llm.Message, input string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})
	return messages
}
