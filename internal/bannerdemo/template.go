package bannerdemo

const homePage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>assent demo shop</title>
  <style>
    body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; }
    .banner { border: 2px solid #333; padding: 1rem; background: #fffbe6; }
    .preferences { border: 1px solid #ccc; padding: 1rem; }
    code { background: #eee; padding: 0 0.25rem; }
  </style>
</head>
<body>
<h1>assent demo shop</h1>
<p>You are browsing as <code>{{.Subject}}</code>.</p>

{{if .ShowBanner}}
<section class="banner">
  <h2>We value your privacy</h2>
  <p>Pick the purposes you are comfortable with. Necessary cookies keep the
  site working and are always on.</p>
  <form method="post" action="/consent">
    {{range .Purposes}}
    <label>
      <input type="checkbox" name="{{.Name}}"{{if .Essential}} checked disabled{{end}}>
      {{.Name}}
    </label><br>
    {{end}}
    <button type="submit">Save choices</button>
  </form>
</section>
{{else}}
<section class="preferences">
  <h2>Your consent</h2>
  <ul>
    {{range .Purposes}}
    <li>{{.Name}}: {{if .Granted}}granted{{else}}declined{{end}}</li>
    {{end}}
  </ul>
  {{if .RecordID}}<p>Record <code>{{.RecordID}}</code>, given at {{.GivenAt}}.</p>{{end}}
  <form method="post" action="/consent/revoke">
    <button type="submit">Revoke consent</button>
  </form>
</section>
{{end}}
</body>
</html>
`
