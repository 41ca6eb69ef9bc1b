package mail

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	textTemplate "text/template"
)

const (
	otpSubject     = "Your InkStudio sign-in code"
	welcomeSubject = "Welcome to InkStudio"
)

var otpText = textTemplate.Must(textTemplate.New("otp.txt").Parse(
	`Your InkStudio sign-in code is {{.Code}}

This code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.
`))

var otpHTML = htmlTemplate.Must(htmlTemplate.New("otp.html").Parse(
	`<p>Your InkStudio sign-in code is</p>
<p style="font-size:28px;letter-spacing:6px;font-weight:bold">{{.Code}}</p>
<p>This code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.</p>
`))

var welcomeText = textTemplate.Must(textTemplate.New("welcome.txt").Parse(
	`Hi {{if .Name}}{{.Name}}{{else}}there{{end}},

Welcome to InkStudio! Your account comes with {{.Grant}} ink to start designing.
`))

var welcomeHTML = htmlTemplate.Must(htmlTemplate.New("welcome.html").Parse(
	`<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Welcome to InkStudio! Your account comes with <strong>{{.Grant}}</strong> ink to start designing.</p>
`))

type otpData struct {
	Code    string
	Minutes int
}

type welcomeData struct {
	Name  string
	Grant int
}

// render はプレーンテキストとHTMLの両方の本文を生成する。
func render(text *textTemplate.Template, html *htmlTemplate.Template, data any) (string, string, error) {
	var textBuf, htmlBuf bytes.Buffer
	if err := text.Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute text template %s: %w", text.Name(), err)
	}
	if err := html.Execute(&htmlBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute HTML template %s: %w", html.Name(), err)
	}
	return textBuf.String(), htmlBuf.String(), nil
}
