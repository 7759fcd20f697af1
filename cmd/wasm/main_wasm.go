//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/jun/cote/internal/document"
	"github.com/jun/cote/internal/language"
	"github.com/jun/cote/internal/markdown"
)

func main() {
	light := markdown.NewRenderer(markdown.ThemeLight)
	dark := markdown.NewRenderer(markdown.ThemeDark)

	// format: languageFor(filename) -> languageId
	languageForFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 1 {
			return language.Plaintext
		}
		return language.For(args[0].String())
	})

	// format: renderMarkdown(source, dark?) -> html
	renderFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 {
			return "Error: Invalid number of arguments"
		}
		r := light
		if len(args) > 1 && args[1].Truthy() {
			r = dark
		}
		html, err := r.Render([]byte(args[0].String()))
		if err != nil {
			return "Error: " + err.Error()
		}
		return string(html)
	})

	// format: previewStylesheet(dark?) -> css
	stylesheetFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		r := light
		if len(args) > 0 && args[0].Truthy() {
			r = dark
		}
		css, err := r.Stylesheet()
		if err != nil {
			return ""
		}
		return css
	})

	// format: parseOpenRequest(href) -> {mode, fileId, userId} | {error: {title, message, details}}
	parseFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		obj := js.Global().Get("Object").New()
		if len(args) != 1 {
			obj.Set("error", fileError(&document.FileError{Title: "Invalid State Parameter", Message: "Could not parse the state parameter from the URL."}))
			return obj
		}
		req, ferr := document.ParseOpenRequest(args[0].String())
		if ferr != nil {
			obj.Set("error", fileError(ferr))
			return obj
		}
		if req == nil {
			obj.Set("mode", document.ModeLocal.String())
			return obj
		}
		obj.Set("mode", document.ModeRemote.String())
		obj.Set("fileId", req.FileID())
		obj.Set("userId", req.UserID)
		return obj
	})

	js.Global().Set("languageFor", languageForFunc)
	js.Global().Set("renderMarkdown", renderFunc)
	js.Global().Set("previewStylesheet", stylesheetFunc)
	js.Global().Set("parseOpenRequest", parseFunc)

	fmt.Println("cote wasm initialized")

	select {}
}

func fileError(e *document.FileError) js.Value {
	obj := js.Global().Get("Object").New()
	obj.Set("title", e.Title)
	obj.Set("message", e.Message)
	obj.Set("details", e.Details)
	return obj
}
