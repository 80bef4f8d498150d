package server

// editorHTML is the single-page CV editor. It posts edits to the server,
// listens for render events on the WebSocket and refreshes the PDF preview
// whenever a render completes.
const editorHTML = `<!DOCTYPE html>
<html>
<head>
    <title>cvforge</title>
    <style>
        body {
            font-family: system-ui, -apple-system, sans-serif;
            margin: 0;
            height: 100vh;
            display: flex;
            flex-direction: column;
            background: #f5f5f5;
        }
        header {
            display: flex;
            align-items: center;
            gap: 10px;
            padding: 10px 16px;
            background: #1e293b;
            color: #fff;
        }
        header h1 { font-size: 16px; margin: 0; flex: 1; }
        button {
            border: none;
            border-radius: 4px;
            padding: 6px 14px;
            background: #007acc;
            color: #fff;
            cursor: pointer;
        }
        button:disabled { background: #6c757d; cursor: default; }
        .tabs button { background: #334155; }
        .tabs button.active { background: #007acc; }
        main { flex: 1; display: flex; min-height: 0; }
        .pane { flex: 1; display: flex; flex-direction: column; min-width: 0; }
        textarea {
            flex: 1;
            border: none;
            resize: none;
            padding: 12px;
            font-family: ui-monospace, monospace;
            font-size: 13px;
        }
        iframe { flex: 1; border: none; background: #fff; }
        #status {
            padding: 6px 16px;
            font-size: 12px;
            background: #e2e8f0;
            color: #333;
        }
        #status.error { background: #fecaca; }
    </style>
</head>
<body>
    <header>
        <h1>cvforge</h1>
        <span class="tabs">
            <button id="tab-working" class="active" onclick="showTab('working')">Working CV</button>
            <button id="tab-master" onclick="showTab('master')">Master CV</button>
            <button id="tab-job" onclick="showTab('job')">Job Ad</button>
        </span>
        <button id="tailor" onclick="tailor()">Tailor</button>
        <button onclick="render(false)">Render</button>
        <button onclick="render(true)">Retry</button>
        <button onclick="cleanup()">Cleanup</button>
    </header>
    <main>
        <div class="pane">
            <textarea id="editor" spellcheck="false"></textarea>
        </div>
        <div class="pane">
            <iframe id="preview"></iframe>
        </div>
    </main>
    <div id="status">ready</div>
    <script>
        let tab = 'working';
        const docs = { working: '', master: '', job: '' };
        const endpoints = { working: '/api/working', master: '/api/cv', job: '/api/job' };
        const editor = document.getElementById('editor');
        const statusBar = document.getElementById('status');

        function setStatus(msg, isError) {
            statusBar.textContent = msg;
            statusBar.className = isError ? 'error' : '';
        }

        function showTab(name) {
            docs[tab] = editor.value;
            tab = name;
            editor.value = docs[name];
            for (const t of ['working', 'master', 'job']) {
                document.getElementById('tab-' + t).className = t === name ? 'active' : '';
            }
        }

        async function loadDocs() {
            for (const name of ['working', 'master', 'job']) {
                const resp = await fetch(endpoints[name]);
                if (resp.ok) docs[name] = await resp.text();
            }
            editor.value = docs[tab];
        }

        editor.addEventListener('input', () => {
            docs[tab] = editor.value;
            if (tab === 'working') {
                save('/api/edit', editor.value);
            }
        });

        editor.addEventListener('blur', () => {
            if (tab === 'master') save('/api/cv', editor.value);
            if (tab === 'job') save('/api/job', editor.value);
        });

        async function save(url, body) {
            const resp = await fetch(url, { method: 'POST', body });
            if (!resp.ok) {
                const err = await resp.json().catch(() => ({}));
                setStatus(err.error || 'save failed', true);
            }
        }

        async function render(retry) {
            setStatus('rendering...');
            const resp = await fetch('/api/render' + (retry ? '?retry=1' : ''), { method: 'POST' });
            const out = await resp.json();
            if (!resp.ok) { setStatus(out.error || 'render failed', true); return; }
            applyOutcome(out);
        }

        async function tailor() {
            const btn = document.getElementById('tailor');
            btn.disabled = true;
            setStatus('tailoring...');
            try {
                const resp = await fetch('/api/tailor', { method: 'POST' });
                const out = await resp.json();
                if (!resp.ok) { setStatus(out.error || 'tailoring failed', true); return; }
                docs.working = out.working_cv;
                if (tab === 'working') editor.value = out.working_cv;
                setStatus(out.warnings && out.warnings.length
                    ? 'tailored with warnings: ' + out.warnings.join('; ')
                    : 'tailored');
            } finally {
                btn.disabled = false;
            }
        }

        async function cleanup() {
            const resp = await fetch('/api/cleanup', { method: 'POST' });
            const out = await resp.json();
            setStatus(resp.ok ? 'removed ' + out.removed + ' old renders' : out.error, !resp.ok);
        }

        function applyOutcome(outcome) {
            if (!outcome) return;
            if (outcome.success) {
                setStatus('rendered in ' + (outcome.duration / 1e6).toFixed(0) + 'ms');
                if (outcome.artifact && outcome.artifact.pdf) {
                    const pdf = outcome.artifact.pdf.split(/[\\/]/).pop();
                    document.getElementById('preview').src =
                        '/artifacts/' + outcome.artifact.id + '/' + pdf;
                }
            } else {
                setStatus('render failed (' + outcome.category + '): ' + outcome.reason, true);
            }
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws');
            ws.onmessage = (e) => {
                const msg = JSON.parse(e.data);
                if (msg.type === 'render_started') setStatus('rendering...');
                if (msg.type === 'render_complete') applyOutcome(msg.data);
                if (msg.type === 'render_error') setStatus(msg.data.error, true);
                if (msg.type === 'tailor_progress') setStatus(msg.data.message + ' (' + msg.data.percent + '%)');
            };
            ws.onclose = () => setTimeout(connect, 2000);
        }

        loadDocs();
        connect();
    </script>
</body>
</html>
`
