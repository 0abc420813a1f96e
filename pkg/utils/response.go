package utils

import (
	"net/http"

	"github.com/go-chi/render"
)

// RespondText 发送纯文本响应
func RespondText(w http.ResponseWriter, r *http.Request, status int, text string) {
	render.Status(r, status)
	render.PlainText(w, r, text)
}

// RespondError 发送纯文本错误响应
func RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondText(w, r, status, message)
}
