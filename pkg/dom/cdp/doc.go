// Package cdp implements dom.Page and history.Stack over the Chrome
// DevTools Protocol with chromedp. It drives a real browser tab without
// any script on the page, which makes it suitable for crawling a site
// through the router (see the walk command).
package cdp
