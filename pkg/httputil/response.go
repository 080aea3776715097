package httputil

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Response is the envelope used by the admin API
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WriteResponse writes a successful JSON response
func WriteResponse(ctx *fasthttp.RequestCtx, data interface{}) {
	WriteJSON(ctx, Response{Success: true, Data: data}, fasthttp.StatusOK)
}

// WriteErrorResponse writes an error JSON response
func WriteErrorResponse(ctx *fasthttp.RequestCtx, message string, status int) {
	WriteJSON(ctx, Response{Success: false, Error: message}, status)
}

// WriteJSON writes data as a bare JSON body
func WriteJSON(ctx *fasthttp.RequestCtx, data interface{}, status int) {
	body, err := json.Marshal(data)
	if err != nil {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"error":"failed to marshal response"}`)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

// WriteText writes a plain text body
func WriteText(ctx *fasthttp.RequestCtx, text string, status int) {
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetStatusCode(status)
	ctx.SetBodyString(text)
}
