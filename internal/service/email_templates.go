package service

import (
	"bytes"
	"html/template"
)

const (
	TemplateWelcome             = "welcome"
	TemplateSubmissionReceived  = "submission_received"
	TemplateCorrectionCompleted = "correction_completed"
	TemplatePasswordReset       = "password_reset"
	TemplateAchievements        = "achievements_unlocked"
	TemplatePaymentConfirmed    = "payment_confirmed"
)

const emailLayout = `{{define "layout"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
{{template "content" .}}
</div>{{end}}
{{define "button"}}<div style="margin: 30px 0;">
  <a href="{{.URL}}" style="background-color: #e11d48; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px;">{{.Label}}</a>
</div>{{end}}`

var emailBodies = map[string]string{
	TemplateWelcome: `{{define "content"}}<h1 style="color: #333;">Olá, {{.Name}}!</h1>
<p>Seja bem-vindo(a) à {{.AppName}}! Estamos muito felizes em ter você conosco.</p>
<p>Aqui você encontrará:</p>
<ul>
  <li>Cursos de redação</li>
  <li>Correções personalizadas</li>
  <li>Comunidade de estudantes</li>
  <li>Material exclusivo</li>
</ul>
<p>Para começar, acesse nossa plataforma e explore os cursos disponíveis.</p>
{{template "button" (button .FrontendURL "Acessar Plataforma")}}
<p>Se precisar de ajuda, não hesite em nos contatar.</p>{{end}}`,

	TemplateSubmissionReceived: `{{define "content"}}<h1 style="color: #333;">Redação Recebida!</h1>
<p>Olá, {{.Name}}!</p>
<p>Sua redação "{{.Title}}" foi recebida com sucesso.</p>
<ul>
  <li>Data: {{.Date}}</li>
  <li>Status: Aguardando correção</li>
</ul>
<p>Você receberá um email assim que sua redação for corrigida.</p>
{{template "button" (button .Link "Ver Submissão")}}{{end}}`,

	TemplateCorrectionCompleted: `{{define "content"}}<h1 style="color: #333;">Correção Concluída!</h1>
<p>Olá, {{.Name}}!</p>
<p>A correção da sua redação "{{.Title}}" foi concluída.</p>
<ul>
  <li>Nota: {{.Score}}</li>
  <li>Data da correção: {{.Date}}</li>
</ul>
<p>Acesse a plataforma para ver o feedback completo e as sugestões de melhoria.</p>
{{template "button" (button .Link "Ver Correção")}}{{end}}`,

	TemplatePasswordReset: `{{define "content"}}<h1 style="color: #333;">Recuperação de Senha</h1>
<p>Olá, {{.Name}}!</p>
<p>Recebemos uma solicitação para redefinir sua senha.</p>
<p>Clique no botão abaixo para criar uma nova senha:</p>
{{template "button" (button .Link "Redefinir Senha")}}
<p>Se você não solicitou a redefinição de senha, ignore este email.</p>
<p>Este link expira em 1 hora.</p>{{end}}`,

	TemplateAchievements: `{{define "content"}}<h1 style="color: #333;">Nova Conquista!</h1>
<p>Olá, {{.Name}}!</p>
<p>Você desbloqueou:</p>
<ul>
{{range .Achievements}}  <li><strong>{{.Title}}</strong> ({{.Points}} pontos): {{.Description}}</li>
{{end}}</ul>
{{template "button" (button .Link "Ver Conquistas")}}{{end}}`,

	TemplatePaymentConfirmed: `{{define "content"}}<h1 style="color: #333;">Pagamento Confirmado!</h1>
<p>Olá, {{.Name}}!</p>
<p>Recebemos o pagamento do pedido {{.OrderID}}.</p>
<ul>
  <li>Plano: {{.Plan}}</li>
  <li>Valor: {{.Amount}}</li>
  <li>Válido até: {{.ExpiresAt}}</li>
</ul>
{{template "button" (button .Link "Ver Pagamentos")}}{{end}}`,
}

var emailSubjects = map[string]string{
	TemplateWelcome:             "Bem-vindo ao Curso de redação!",
	TemplateSubmissionReceived:  "Redação Recebida com Sucesso",
	TemplateCorrectionCompleted: "Sua Redação Foi Corrigida!",
	TemplatePasswordReset:       "Recuperação de Senha",
	TemplateAchievements:        "Você desbloqueou uma nova conquista!",
	TemplatePaymentConfirmed:    "Pagamento confirmado",
}

type buttonData struct {
	URL   string
	Label string
}

var emailFuncs = template.FuncMap{
	"button": func(url, label string) buttonData { return buttonData{URL: url, Label: label} },
}

// emailTemplates 启动时解析全部模板，解析失败直接 panic
var emailTemplates = mustParseEmailTemplates()

func mustParseEmailTemplates() map[string]*template.Template {
	parsed := make(map[string]*template.Template, len(emailBodies))
	for name, body := range emailBodies {
		t := template.Must(template.New(name).Funcs(emailFuncs).Parse(emailLayout))
		parsed[name] = template.Must(t.Parse(body))
	}
	return parsed
}

func renderEmail(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
