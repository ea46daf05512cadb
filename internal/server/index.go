package server

import (
	"io"
	"net/http"
)

// indexPage lists every event as it arrives on /logs.
const indexPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Fleet Arbiter</title>
  <style>
    body { font-family: monospace; margin: 2em; }
    li.CommandRejected { color: #a33; }
    li.VictoryAwarded { font-weight: bold; }
  </style>
</head>
<body>
  <h1>Registered Transactions</h1>
  <ul id="logs"></ul>
  <script>
    const logs = document.getElementById('logs');
    const source = new EventSource('/logs');
    const append = (event) => {
      const li = document.createElement('li');
      li.className = event.type;
      li.textContent = event.data;
      logs.appendChild(li);
    };
    source.onmessage = append;
    ['Joined', 'Fired', 'Reported', 'Waved', 'VictoryClaimed', 'VictoryContested',
     'VictoryAwarded', 'VictoryVoided', 'CommandRejected'].forEach((kind) => {
      source.addEventListener(kind, append);
    });
  </script>
</body>
</html>
`

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, indexPage)
}
