package api

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusPageTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Backend ViajesÉpica</title>
<style>
body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
h1 { color: #009EE3; }
.status { background: #e8f5e9; padding: 15px; border-radius: 8px; margin: 20px 0; }
.warning { background: #fff3e0; }
code { background: #f5f5f5; padding: 2px 6px; border-radius: 4px; }
</style>
</head>
<body>
<h1>Backend ViajesÉpica</h1>
<div class="status{{if not .TokenConfigured}} warning{{end}}">
<p><strong>Puerto:</strong> {{.Port}}</p>
<p><strong>Entorno:</strong> {{.Env}}</p>
{{if .TokenConfigured}}<p><strong>Access Token:</strong> Configurado ({{.AccessTokenLength}} caracteres)</p>
{{else}}<p><strong>Access Token:</strong> No configurado</p>
{{end}}<p><strong>Mercado Pago:</strong> {{if eq .GatewayMode "fake"}}Simulado{{else}}Conectado{{end}}</p>
<p><strong>Almacenamiento:</strong> {{.StoreBackend}}</p>
<p><strong>Conciliación:</strong> {{.QueueMode}}</p>
</div>
<h2>Endpoints disponibles</h2>
<ul>
<li><code>POST /api/create-preference</code> - Crear preferencia de pago</li>
<li><code>POST /webhook/mercadopago</code> - Notificaciones de Mercado Pago</li>
<li><code>GET /api/orders/:id</code> - Estado de un pedido</li>
<li><code>GET /health</code> - Estado del servicio</li>
<li><code>GET /metrics</code> - Métricas</li>
</ul>
</body>
</html>
`))

type statusPageData struct {
	StatusInfo
	TokenConfigured bool
}

// statusPage renders a human-readable summary of the running instance
func (h *Handler) statusPage(c *gin.Context) {
	var buf bytes.Buffer
	data := statusPageData{
		StatusInfo:      h.info,
		TokenConfigured: h.info.AccessTokenLength > 0,
	}
	if err := statusPageTemplate.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render status page", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
