package callback

// resultPage is rendered after a redirect callback was handled. It receives Title,
// Heading, Message, Detail and Success.
const resultPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{ .Title }}</title>
    <style>
        * {
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            padding: 1rem;
        }
        .container {
            text-align: center;
            background: white;
            padding: 2.5rem;
            border-radius: 12px;
            box-shadow: 0 10px 25px rgba(0,0,0,0.1);
            max-width: 480px;
            width: 100%;
        }
        .icon {
            width: 64px;
            height: 64px;
            margin: 0 auto 1.5rem;
            border-radius: 50%;
            display: flex;
            align-items: center;
            justify-content: center;
            color: white;
            font-size: 2rem;
            font-weight: bold;
        }
        .icon.ok {
            background: #10b981;
        }
        .icon.fail {
            background: #ef4444;
        }
        h1 {
            color: #1f2937;
            margin-bottom: 1rem;
            font-size: 1.75rem;
        }
        .message {
            color: #6b7280;
            margin-bottom: 1.5rem;
            line-height: 1.5;
        }
        .detail {
            background: #f3f4f6;
            border-radius: 8px;
            padding: 0.75rem 1rem;
            color: #374151;
            font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
            font-size: 0.875rem;
            word-break: break-word;
        }
        .countdown {
            color: #9ca3af;
            font-size: 0.875rem;
            margin-top: 1.5rem;
        }
    </style>
</head>
<body>
    <div class="container">
        {{ if .Success }}<div class="icon ok">&#10003;</div>{{ else }}<div class="icon fail">!</div>{{ end }}
        <h1>{{ .Heading }}</h1>
        <p class="message">{{ .Message }}</p>
        {{ if .Detail }}<div class="detail">{{ .Detail }}</div>{{ end }}
        {{ if .Success }}<p class="countdown">This window will close automatically in <span id="countdown">10</span> seconds.</p>{{ end }}
    </div>
    {{ if .Success }}<script>
        let seconds = 10;
        const el = document.getElementById('countdown');
        const timer = setInterval(() => {
            seconds--;
            el.textContent = seconds;
            if (seconds <= 0) {
                clearInterval(timer);
                window.close();
            }
        }, 1000);
    </script>{{ end }}
</body>
</html>`
