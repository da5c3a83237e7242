// Package docs holds the OpenAPI description of the HTTP API in the layout
// produced by `swag init -g cmd/llamachat/docs.go`. It is only linked into
// binaries built with -tags=swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "llamachat maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/models": {
            "get": {
                "description": "Returns the GGUF models found in the models directory.",
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List models",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Server status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/switch": {
            "post": {
                "description": "Loads the given model in place of the current one. Running work finishes first; every conversation is reset.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Switch model",
                "parameters": [
                    {"description": "Model to load", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.SwitchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SwitchResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/generate": {
            "post": {
                "description": "Streams NDJSON lines {\"token\":\"...\"} followed by a final GenerateResponse. With \"stream\": false only the GenerateResponse is returned.",
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "tags": ["generate"],
                "summary": "Generate text",
                "parameters": [
                    {"description": "Prompt and sampling overrides", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.GenerateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/conversations": {
            "post": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Create conversation",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.ConversationResponse"}}
                }
            }
        },
        "/conversations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Get conversation",
                "parameters": [
                    {"type": "string", "description": "Conversation id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ConversationResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["conversations"],
                "summary": "Delete conversation",
                "parameters": [
                    {"type": "string", "description": "Conversation id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "post": {
                "description": "Streams NDJSON ConversationEvent lines: state changes, reply tokens and a final done line with the assistant message.",
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "tags": ["conversations"],
                "summary": "Send message",
                "parameters": [
                    {"type": "string", "description": "Conversation id", "name": "id", "in": "path", "required": true},
                    {"description": "User input", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.MessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ConversationEvent"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/stop": {
            "post": {
                "description": "Asks the streaming message request of the conversation to stop. A partial reply is kept and marked as stopped.",
                "tags": ["conversations"],
                "summary": "Stop generation",
                "parameters": [
                    {"type": "string", "description": "Conversation id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ConversationEvent": {
            "type": "object",
            "properties": {
                "done": {"type": "boolean"},
                "error": {"type": "string"},
                "message": {"$ref": "#/definitions/types.Message"},
                "state": {"type": "string"},
                "token": {"type": "string"}
            }
        },
        "types.ConversationResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "0b6c8e52-3a55-4d0c-8d0e-6c3f3a1c2b11"},
                "last_error": {"type": "string"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/types.Message"}},
                "state": {"type": "string", "example": "chatting"},
                "summary": {"type": "string"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.GenerateRequest": {
            "type": "object",
            "properties": {
                "max_tokens": {"type": "integer", "example": 128},
                "prompt": {"type": "string", "example": "What is openFrameworks?\n\nAssistant:"},
                "repeat_penalty": {"type": "number", "example": 1.1},
                "stop": {"type": "array", "items": {"type": "string"}},
                "stream": {"type": "boolean", "example": true},
                "temperature": {"type": "number", "example": 0.7},
                "top_k": {"type": "integer", "example": 40},
                "top_p": {"type": "number", "example": 0.9}
            }
        },
        "types.GenerateResponse": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "done": {"type": "boolean", "example": true},
                "error": {"type": "string"},
                "finish_reason": {"type": "string", "example": "stop_word"},
                "usage": {"$ref": "#/definitions/types.Usage"}
            }
        },
        "types.Message": {
            "type": "object",
            "properties": {
                "role": {"type": "string", "example": "assistant"},
                "stopped": {"type": "boolean", "example": false},
                "text": {"type": "string", "example": "Hello! How can I help?"}
            }
        },
        "types.MessageRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string", "example": "Tell me a joke."}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "path": {"type": "string"},
                "size_bytes": {"type": "integer"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "context_fill_ratio": {"type": "number"},
                "context_size": {"type": "integer"},
                "conversations": {"type": "integer"},
                "generating": {"type": "boolean"},
                "gpu_layers": {"type": "integer"},
                "last_error": {"type": "string"},
                "layers": {"type": "integer"},
                "llama_built": {"type": "boolean"},
                "loads_total": {"type": "integer"},
                "max_queue_depth": {"type": "integer"},
                "model": {"type": "string"},
                "queue_len": {"type": "integer"},
                "server_time_unix": {"type": "integer"},
                "state": {"type": "string"},
                "template": {"type": "string"},
                "uptime_seconds": {"type": "integer"}
            }
        },
        "types.SwitchRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string"}
            }
        },
        "types.SwitchResponse": {
            "type": "object",
            "properties": {
                "op_id": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "types.Usage": {
            "type": "object",
            "properties": {
                "completion_tokens": {"type": "integer"},
                "prompt_tokens": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "llamachat API",
	Description:      "HTTP API for local llama.cpp generation and summarizing conversations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
