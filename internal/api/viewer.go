package api

// viewerHTML polls /frame and turns clicks and drags on the image into
// /input commands in device coordinates. The queue panel lists /aq_queues
// and starts runs through /aq_run.
const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ScreenRelay</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            background: #000;
            color: #ccc;
            font-family: system-ui, -apple-system, sans-serif;
            display: flex;
            flex-direction: column;
            align-items: center;
            min-height: 100vh;
        }
        img {
            max-width: 100vw;
            max-height: calc(100vh - 48px);
            object-fit: contain;
            display: block;
            cursor: crosshair;
            user-select: none;
        }
        .bar {
            display: flex;
            gap: 8px;
            align-items: center;
            padding: 8px;
            font-size: 13px;
        }
        .bar button {
            padding: 6px 12px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            border: none;
            border-radius: 14px;
            cursor: pointer;
        }
        .bar select, .bar input {
            padding: 4px 8px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            border: none;
            border-radius: 4px;
        }
        .bar input {
            width: 56px;
        }
        .bar button:hover {
            background: rgba(60, 60, 60, 0.95);
            color: #fff;
        }
    </style>
</head>
<body>
    <img id="screen" alt="Device screen" draggable="false">
    <div class="bar">
        <button onclick="key(4)">Back</button>
        <button onclick="key(3)">Home</button>
        <button onclick="key(187)">Recents</button>
        <span id="fps">-- fps</span>
    </div>
    <div class="bar" id="queue">
        <select id="queue-name"></select>
        <input id="queue-iterations" type="number" min="1" value="1" title="Iterations">
        <button onclick="runQueue()">Run</button>
        <span id="queue-status">queue: --</span>
    </div>
    <script>
        const img = document.getElementById('screen');
        let device = null;
        let etag = '';
        let down = null;

        fetch('/api/device').then(r => r.json()).then(d => { device = d.banner; }).catch(console.error);

        async function poll() {
            try {
                const r = await fetch('/frame', { headers: etag ? { 'If-None-Match': etag } : {} });
                if (r.status === 200) {
                    etag = r.headers.get('ETag') || '';
                    const url = URL.createObjectURL(await r.blob());
                    const old = img.src;
                    img.src = url;
                    if (old) URL.revokeObjectURL(old);
                }
            } catch (e) {
                console.error(e);
            }
            setTimeout(poll, 66);
        }

        setInterval(() => {
            fetch('/status').then(r => r.json()).then(s => {
                document.getElementById('fps').textContent = s.data.fps + ' fps';
            }).catch(console.error);
        }, 1000);

        function toDevice(e) {
            const rect = img.getBoundingClientRect();
            const w = device ? device.real_width : img.naturalWidth;
            const h = device ? device.real_height : img.naturalHeight;
            return {
                x: Math.max(0, Math.round((e.clientX - rect.left) / rect.width * w)),
                y: Math.max(0, Math.round((e.clientY - rect.top) / rect.height * h)),
            };
        }

        function send(cmd) {
            fetch('/input', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(cmd),
            }).catch(console.error);
        }

        function key(code) {
            send({ action: 'keyevent', key: code });
        }

        img.addEventListener('mousedown', e => {
            down = { p: toDevice(e), t: Date.now() };
        });

        img.addEventListener('mouseup', e => {
            if (!down) return;
            const p = toDevice(e);
            const held = Date.now() - down.t;
            const moved = Math.abs(p.x - down.p.x) + Math.abs(p.y - down.p.y) > 10;
            if (moved) {
                send({ action: 'swipe', x1: down.p.x, y1: down.p.y, x2: p.x, y2: p.y, duration: Math.max(held, 100) });
            } else if (held > 500) {
                send({ action: 'long_tap', x: p.x, y: p.y, duration: held });
            } else {
                send({ action: 'tap', x: p.x, y: p.y });
            }
            down = null;
        });

        document.addEventListener('keypress', e => {
            if (e.target.closest('#queue')) return;
            if (e.key.length === 1) send({ action: 'text', text: e.key });
        });

        function loadQueues() {
            fetch('/aq_queues').then(r => r.json()).then(q => {
                document.getElementById('queue-status').textContent = 'queue: ' + q.status;
                const names = Array.isArray(q.data) ? q.data : (q.queues || []);
                const sel = document.getElementById('queue-name');
                sel.replaceChildren(...names.map(n => new Option(n, n)));
            }).catch(console.error);
        }

        function runQueue() {
            const queue = document.getElementById('queue-name').value;
            if (!queue) return;
            const iterations = parseInt(document.getElementById('queue-iterations').value, 10) || 1;
            fetch('/aq_run', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ queue, iterations }),
            }).then(r => r.json()).then(res => {
                document.getElementById('queue-status').textContent = 'queue: ' + res.status;
            }).catch(console.error);
        }

        loadQueues();
        poll();
    </script>
</body>
</html>`
