package payments

import (
	"bytes"
	"html/template"
)

var paymentEmailTemplate = template.Must(template.New("payment_email").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="UTF-8"><title>Confirmação de pagamento</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2937; max-width: 600px; margin: 0 auto;">
	<h2 style="color: #047857;">Endurancy</h2>
	<p>Olá{{if .CustomerName}}, {{.CustomerName}}{{end}}!</p>
	<p>Recebemos a solicitação de assinatura do plano <strong>{{.PlanName}}</strong> para a organização <strong>{{.OrganizationName}}</strong>.</p>
	<table style="border-collapse: collapse; margin: 16px 0;">
		<tr><td style="padding: 4px 12px 4px 0;">Plano</td><td><strong>{{.PlanName}}</strong></td></tr>
		<tr><td style="padding: 4px 12px 4px 0;">Valor</td><td><strong>{{.Price}}</strong></td></tr>
	</table>
	<p>Para confirmar o pagamento e ativar os módulos do plano, clique no botão abaixo:</p>
	<p><a href="{{.ConfirmURL}}" style="background: #047857; color: #ffffff; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Confirmar pagamento</a></p>
	<p style="font-size: 12px; color: #6b7280;">Se o botão não funcionar, copie e cole este endereço no navegador:<br>{{.ConfirmURL}}</p>
</body>
</html>
`))

type paymentEmailData struct {
	CustomerName     string
	OrganizationName string
	PlanName         string
	Price            string
	ConfirmURL       string
}

func renderPaymentEmail(data paymentEmailData) (string, error) {
	var buf bytes.Buffer
	if err := paymentEmailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func paymentEmailSubject(planName string) string {
	return "Confirme o pagamento do plano " + planName
}
