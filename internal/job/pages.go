package job

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fightlens/fightlens/internal/httputil"
)

var indexPageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>FightLens — Video Fight Detection</title>
    <style nonce="{{.Nonce}}">
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #0a1628;
            color: #ffffff;
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
            align-items: center;
        }
        .container { max-width: 640px; width: 100%; padding: 2rem 1rem; }
        h1 { font-size: 1.5rem; font-weight: 600; }
        .subtitle { margin-top: 0.5rem; color: #94a3b8; font-size: 0.875rem; }
        form { margin-top: 2rem; background: #111f38; border-radius: 8px; padding: 1.5rem; }
        label { display: block; margin-top: 1rem; font-size: 0.875rem; color: #94a3b8; }
        input { margin-top: 0.25rem; width: 100%; padding: 0.5rem; border-radius: 4px; border: 1px solid #1e293b; background: #0a1628; color: #fff; }
        button {
            margin-top: 1.5rem;
            width: 100%;
            padding: 0.75rem;
            border: none;
            border-radius: 4px;
            background: #00b67a;
            color: #fff;
            font-size: 1rem;
            cursor: pointer;
        }
        button:disabled { background: #1e293b; cursor: wait; }
        .status { margin-top: 1rem; font-size: 0.875rem; color: #94a3b8; min-height: 1.25rem; }
        .status.error { color: #f87171; }
    </style>
</head>
<body>
    <div class="container">
        <h1>FightLens</h1>
        <p class="subtitle">Upload surveillance footage to scan it for physical altercations.</p>
        <form id="upload-form">
            <label>Video file (.mp4, .avi, .mov, .mkv — up to {{.MaxUploadMB}} MB)
                <input type="file" name="video" accept=".mp4,.avi,.mov,.mkv" required>
            </label>
            <label>Sequence length (frames per analysis window)
                <input type="number" name="sequence_length" value="{{.Defaults.SequenceLength}}" min="1" max="300">
            </label>
            <label>Detection threshold
                <input type="number" name="threshold" value="{{.Defaults.Threshold}}" min="0" max="1" step="0.05">
            </label>
            <label>Output frame rate
                <input type="number" name="output_frame_rate" value="{{.Defaults.OutputFrameRate}}" min="1" max="120">
            </label>
            <button type="submit" id="submit-btn">Analyze video</button>
        </form>
        <p class="status" id="status"></p>
        <script nonce="{{.Nonce}}">
            var form = document.getElementById('upload-form');
            var statusEl = document.getElementById('status');
            var btn = document.getElementById('submit-btn');
            var pollInterval = 2000;

            function setStatus(text, isError) {
                statusEl.textContent = text;
                statusEl.className = isError ? 'status error' : 'status';
            }

            function poll(jobID) {
                setTimeout(function() {
                    fetch('/status/' + jobID).then(function(r) { return r.json(); }).then(function(data) {
                        if (data.status === 'completed') {
                            window.location.href = '/results/' + jobID;
                        } else if (data.status === 'failed') {
                            btn.disabled = false;
                            setStatus(data.error || 'Unknown error', true);
                        } else {
                            setStatus('Processing…');
                            poll(jobID);
                        }
                    }).catch(function(err) {
                        btn.disabled = false;
                        setStatus('Lost contact with the server: ' + err, true);
                    });
                }, pollInterval);
            }

            form.addEventListener('submit', function(e) {
                e.preventDefault();
                btn.disabled = true;
                setStatus('Uploading…');
                fetch('/upload', { method: 'POST', body: new FormData(form) })
                    .then(function(r) { return r.json(); })
                    .then(function(data) {
                        if (data.error) {
                            btn.disabled = false;
                            setStatus(data.error, true);
                            return;
                        }
                        setStatus('Processing…');
                        poll(data.job_id);
                    })
                    .catch(function(err) {
                        btn.disabled = false;
                        setStatus('Upload failed: ' + err, true);
                    });
            });
        </script>
    </div>
</body>
</html>`))

type indexPageData struct {
	Defaults    Params
	MaxUploadMB int64
	Nonce       string
}

// IndexPage renders the upload form.
func (h *Handler) IndexPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexPageTemplate.Execute(w, indexPageData{
		Defaults:    DefaultParams(),
		MaxUploadMB: h.maxUploadBytes / (1024 * 1024),
		Nonce:       httputil.NonceFromContext(r.Context()),
	})
	if err != nil {
		log.Printf("failed to render index page: %v", err)
	}
}

var resultsPageTemplate = template.Must(template.New("results").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Filename}} — FightLens</title>
    <style nonce="{{.Nonce}}">
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #0a1628;
            color: #ffffff;
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
            align-items: center;
        }
        .container { max-width: 960px; width: 100%; padding: 2rem 1rem; }
        video { width: 100%; border-radius: 8px; background: #000; }
        h1 { margin-top: 1rem; font-size: 1.5rem; font-weight: 600; }
        .meta { margin-top: 0.5rem; color: #94a3b8; font-size: 0.875rem; }
        .timeline { margin-top: 1.5rem; display: flex; gap: 2px; }
        .segment {
            flex: 1;
            height: 24px;
            border-radius: 2px;
            background: #1e5d3a;
            cursor: pointer;
        }
        .segment.fight { background: #b91c1c; }
        .segment:hover { outline: 2px solid #fff; }
        .panel { margin-top: 1.5rem; background: #111f38; border-radius: 8px; padding: 1.5rem; }
        .panel h2 { font-size: 1.125rem; font-weight: 600; margin-bottom: 0.75rem; }
        .report { font-size: 0.875rem; line-height: 1.6; }
        .report .alert-danger { color: #f87171; }
        .report .alert-success { color: #34d399; }
        .chat-log { max-height: 240px; overflow-y: auto; font-size: 0.875rem; }
        .chat-log p { margin-bottom: 0.5rem; }
        .chat-log .you { color: #94a3b8; }
        .chat-row { margin-top: 0.75rem; display: flex; gap: 0.5rem; }
        .chat-row input { flex: 1; padding: 0.5rem; border-radius: 4px; border: 1px solid #1e293b; background: #0a1628; color: #fff; }
        button { padding: 0.5rem 1rem; border: none; border-radius: 4px; background: #00b67a; color: #fff; cursor: pointer; }
        button:disabled { background: #1e293b; cursor: wait; }
    </style>
</head>
<body>
    <div class="container">
        <video id="player" controls>
            <source src="{{.VideoURL}}" type="{{.ContentType}}">
            Your browser does not support video playback.
        </video>
        <h1>{{.Filename}}</h1>
        <p class="meta">{{.FightSegments}} of {{.TotalSegments}} segments flagged · {{.TotalFrames}} frames · analyzed in {{.ProcessingTime}}</p>
        <div class="timeline" id="timeline">
            {{- range .Segments}}
            <div class="segment{{if .IsFight}} fight{{end}}"
                 data-start="{{.StartFrame}}"
                 title="{{.StartTime}}–{{.EndTime}} (p={{printf "%.2f" .Probability}})"></div>
            {{- end}}
        </div>
        <div class="panel">
            <h2>Security report</h2>
            <div class="report" id="report">{{.Report}}</div>
            <button id="regen-btn" type="button">Regenerate report</button>
        </div>
        <div class="panel">
            <h2>Ask about this footage</h2>
            <div class="chat-log" id="chat-log"></div>
            <div class="chat-row">
                <input id="chat-input" maxlength="2000" placeholder="e.g. When does the first incident start?">
                <button id="chat-btn" type="button">Send</button>
            </div>
        </div>
        <script nonce="{{.Nonce}}">
            var player = document.getElementById('player');
            var fps = {{.FPS}};

            document.getElementById('timeline').addEventListener('click', function(e) {
                var seg = e.target.closest('.segment');
                if (!seg) { return; }
                player.currentTime = Number(seg.dataset.start) / fps;
                player.play();
            });

            var regenBtn = document.getElementById('regen-btn');
            regenBtn.addEventListener('click', function() {
                regenBtn.disabled = true;
                fetch('/api/regenerate-report/{{.JobID}}', { method: 'POST' })
                    .then(function(r) { return r.json(); })
                    .then(function(data) {
                        regenBtn.disabled = false;
                        if (data.status === 'success') {
                            document.getElementById('report').innerHTML = data.report;
                        } else {
                            alert(data.error || 'Could not regenerate report');
                        }
                    })
                    .catch(function() { regenBtn.disabled = false; });
            });

            var chatLog = document.getElementById('chat-log');
            var chatInput = document.getElementById('chat-input');
            var chatBtn = document.getElementById('chat-btn');

            function appendChat(cls, text) {
                var p = document.createElement('p');
                p.className = cls;
                p.textContent = text;
                chatLog.appendChild(p);
                chatLog.scrollTop = chatLog.scrollHeight;
            }

            function sendChat() {
                var message = chatInput.value.trim();
                if (!message) { return; }
                chatInput.value = '';
                chatBtn.disabled = true;
                appendChat('you', 'You: ' + message);
                fetch('/api/chat/{{.JobID}}', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ message: message })
                })
                    .then(function(r) { return r.json(); })
                    .then(function(data) {
                        chatBtn.disabled = false;
                        appendChat('bot', data.status === 'success' ? data.response : (data.error || 'Chat unavailable'));
                    })
                    .catch(function() {
                        chatBtn.disabled = false;
                        appendChat('bot', 'Chat unavailable');
                    });
            }

            chatBtn.addEventListener('click', sendChat);
            chatInput.addEventListener('keydown', function(e) {
                if (e.key === 'Enter') { sendChat(); }
            });
        </script>
    </div>
</body>
</html>`))

type resultsPageData struct {
	JobID          string
	Filename       string
	VideoURL       string
	ContentType    string
	Report         template.HTML
	Segments       []Segment
	TotalFrames    int
	TotalSegments  int
	FightSegments  int
	FPS            int
	ProcessingTime string
	Nonce          string
}

// ResultsPage renders the detection timeline for a completed job. Jobs that
// are missing or still running redirect back to the upload form.
func (h *Handler) ResultsPage(w http.ResponseWriter, r *http.Request) {
	j, err := h.store.Get(chi.URLParam(r, "jobID"))
	if err != nil || j.Status != StatusCompleted || j.Results == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	videoURL, err := h.storage.GenerateDownloadURL(r.Context(), j.SourceKey, 1*time.Hour)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := resultsPageTemplate.Execute(w, resultsPageData{
		JobID:          j.ID,
		Filename:       j.Filename,
		VideoURL:       videoURL,
		ContentType:    j.ContentType,
		Report:         template.HTML(j.Report),
		Segments:       j.Results.Segments,
		TotalFrames:    j.Results.TotalFrames,
		TotalSegments:  j.Results.TotalSegments,
		FightSegments:  j.Results.FightSegments,
		FPS:            j.Params.OutputFrameRate,
		ProcessingTime: fmt.Sprintf("%.1fs", j.Results.ProcessingTimeSeconds),
		Nonce:          httputil.NonceFromContext(r.Context()),
	}); err != nil {
		log.Printf("failed to render results page: %v", err)
	}
}
