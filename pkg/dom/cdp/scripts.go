package cdp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Page scripts. Each is the body of a function; arguments arrive as
// a0, a1, ... and the container selector is always a0.
const (
	jsContainer = `var c = document.querySelector(a0); if (!c) { throw new Error('container ' + a0 + ' not found'); }`

	jsSetHTML = jsContainer + ` c.innerHTML = a1;`

	jsSetTitle = `document.title = a1;`

	jsSetMeta = `var m = document.querySelector('meta[name="' + a1 + '"]') || document.querySelector('meta[property="' + a1 + '"]');
if (!m) { m = document.createElement('meta'); m.setAttribute('name', a1); document.head.appendChild(m); }
m.setAttribute('content', a2);`

	jsHasAsset = `var sel = a1 === 'script' ? 'script[src]' : 'link[rel~="stylesheet"][href]';
var attr = a1 === 'script' ? 'src' : 'href';
return Array.prototype.some.call(document.querySelectorAll(sel), function (el) { return el.getAttribute(attr) === a2; });`

	jsInjectScript = `return new Promise(function (resolve, reject) {
var el = document.createElement('script'); el.src = a1.src; el.async = !!a1.async; el.defer = !!a1.defer;
el.onload = function () { resolve(true); }; el.onerror = function () { reject(new Error('script ' + a1.src + ' failed to load')); };
document.head.appendChild(el); });`

	jsInjectStyle = `return new Promise(function (resolve, reject) {
var el = document.createElement('link'); el.rel = 'stylesheet'; el.href = a1.href; if (a1.media) { el.media = a1.media; }
el.onload = function () { resolve(true); }; el.onerror = function () { reject(new Error('style ' + a1.href + ' failed to load')); };
document.head.appendChild(el); });`

	jsStyle = jsContainer + ` Object.keys(a1).forEach(function (k) { if (a1[k] === '') { c.style.removeProperty(k); } else { c.style.setProperty(k, a1[k]); } }); void c.offsetHeight;`

	jsScrollY = `return window.scrollY;`

	jsScrollTo = `window.scrollTo(0, a1);`

	jsDispatch = `var t = window; if (a1 === 'container') { ` + jsContainer + ` t = c; }
t.dispatchEvent(new CustomEvent(a2, { detail: a3 }));`

	jsLoading = `document.body.classList.toggle('spa-loading', a1);`

	jsLinks = `return Array.prototype.map.call(document.querySelectorAll('a[href]'), function (a) {
return { href: a.getAttribute('href'), target: a.target || '', download: a.hasAttribute('download'), external: a.dataset.external !== undefined }; });`

	jsLocation = `return location.pathname + location.search + location.hash;`

	jsAssign = `setTimeout(function () { location.assign(a1); }, 0);`

	jsPush = `history.pushState(a2, '', a1);`

	jsReplace = `history.replaceState(a2, '', a1);`

	jsCurrent = `return { url: location.pathname + location.search, state: history.state || {} };`

	jsLen = `return history.length;`

	// jsGo moves through history and resolves with the entry popped to.
	jsGo = `return new Promise(function (resolve) {
window.addEventListener('popstate', function (e) { resolve({ url: location.pathname + location.search, state: e.state || {} }); }, { once: true });
history.go(a1); });`
)

// buildScript wraps body in a function called with args encoded as JSON.
func buildScript(body string, args ...any) (string, error) {
	params := make([]string, len(args))
	values := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encoding argument %d: %w", i, err)
		}
		params[i] = fmt.Sprintf("a%d", i)
		values[i] = string(b)
	}
	return fmt.Sprintf("(function (%s) {\n%s\n})(%s)",
		strings.Join(params, ", "), body, strings.Join(values, ", ")), nil
}
