// Package conversation keeps a chat history bounded by folding old turns into
// a running summary.
//
// A Conversation is either chatting, generating a reply or summarizing. Submit
// appends the user's turn and starts a reply session, or a summary session
// first once the history holds HistoryLimit+SummaryInterval messages. Update is
// called every frame: it moves session output into the history and, when the
// session ends, trims stop words from the reply or stores the summary and
// prunes the history down to HistoryLimit messages before replying.
package conversation
