package types

// Model represents a loadable GGUF model on disk.
type Model struct {
	// Stable identifier for the model: the file name.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	ID string `json:"id" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// Display name, truncated for narrow pickers.
	// example: tinyllama-1.1b-ch...
	Name string `json:"name" example:"tinyllama-1.1b-ch..."`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// File size in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes" example:"668788096"`
}

// Message is one conversation turn as exposed over the API.
type Message struct {
	// Role of the speaker: user or assistant.
	// example: assistant
	Role string `json:"role" example:"assistant"`
	// Message text; stopped replies end with the stopped marker.
	// example: Hello! How can I help?
	Text string `json:"text" example:"Hello! How can I help?"`
	// True when the reply was stopped or ended abnormally.
	// example: false
	Stopped bool `json:"stopped,omitempty" example:"false"`
}
