package api

import "net/http"

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CamWatch</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: system-ui, -apple-system, sans-serif;
            background: #111;
            color: #ddd;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
            align-items: center;
            gap: 12px;
            padding: 16px;
        }
        .controls {
            display: flex;
            gap: 8px;
            width: 100%;
            max-width: 800px;
        }
        input {
            flex: 1;
            padding: 8px 12px;
            border-radius: 6px;
            border: 1px solid #333;
            background: #1b1b1b;
            color: #eee;
        }
        button {
            padding: 8px 14px;
            border-radius: 6px;
            border: none;
            background: #2e7d32;
            color: #fff;
            cursor: pointer;
        }
        button.stop {
            background: #8e2424;
        }
        .frame {
            width: 100%;
            max-width: 800px;
            background: #000;
            border-radius: 6px;
            min-height: 200px;
        }
        .frame img {
            width: 100%;
            display: block;
        }
        .meta {
            font-size: 13px;
            color: #999;
        }
    </style>
</head>
<body>
    <div class="controls">
        <input id="address" placeholder="rtsp://camera/stream">
        <button id="set">Set source</button>
        <button id="stop" class="stop">Stop</button>
    </div>
    <div class="frame"><img id="view" alt="CamWatch live stream"></div>
    <div class="meta">faces: <span id="faces">0</span> &middot; <span id="conn">connecting</span></div>
    <script>
        const view = document.getElementById('view');
        const faces = document.getElementById('faces');
        const conn = document.getElementById('conn');
        const address = document.getElementById('address');

        fetch('/api/stream/status').then(r => r.json()).then(s => {
            if (s.address) address.value = s.address;
        });

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss' : 'ws';
            const ws = new WebSocket(proto + '://' + location.host + '/api/stream/ws');
            ws.onopen = () => { conn.textContent = 'live'; };
            ws.onmessage = (ev) => {
                const msg = JSON.parse(ev.data);
                view.src = 'data:image/jpeg;base64,' + msg.image;
                faces.textContent = msg.faces;
            };
            ws.onclose = () => {
                conn.textContent = 'reconnecting';
                setTimeout(connect, 1000);
            };
        }
        connect();

        document.getElementById('set').onclick = () => {
            fetch('/api/stream/source', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({address: address.value})
            });
        };
        document.getElementById('stop').onclick = () => {
            fetch('/api/stream/stop', {method: 'POST'});
        };
    </script>
</body>
</html>`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
