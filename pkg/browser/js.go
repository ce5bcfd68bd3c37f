package browser

import "encoding/json"

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// queryUniqueJS takes a selector literal. It resolves to a marker
// selector when the selector matches exactly one visible interactable
// element, and to "" otherwise, including for malformed selectors, so
// tier-1 evaluation never throws.
const queryUniqueJS = `(function() {
	const sel = %s;
	function usable(el) {
		if (!(el instanceof Element)) return false;
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden') return false;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		if (el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
		return true;
	}
	let els;
	try { els = document.querySelectorAll(sel); } catch (e) { return ''; }
	const hits = Array.from(els).filter(usable);
	if (hits.length !== 1) return '';
	const mark = 'm' + Date.now().toString(36) + Math.floor(Math.random() * 1e6).toString(36);
	hits[0].setAttribute('data-admitflow-target', mark);
	return '[data-admitflow-target="' + mark + '"]';
})()`

// findByTextJS takes a hint literal and a deep flag. It scans
// interactable candidates in document order for visible text or
// accessible label containing the hint (case-insensitive) and resolves
// to a marker selector for the first match, or "". With deep set it
// additionally walks text nodes up to a clickable ancestor, which
// reaches component trees (overlay menus, framework widgets) whose
// structure hides from the candidate query.
const findByTextJS = `(function() {
	const hint = %s.toLowerCase();
	const deep = %t;
	function usable(el) {
		if (!(el instanceof Element)) return false;
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden') return false;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		if (el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
		return true;
	}
	function labelOf(el) {
		const parts = [
			el.textContent || '',
			el.getAttribute('aria-label') || '',
			el.getAttribute('placeholder') || '',
			el.value || ''
		];
		return parts.join(' ').toLowerCase();
	}
	function mark(el) {
		const m = 'm' + Date.now().toString(36) + Math.floor(Math.random() * 1e6).toString(36);
		el.setAttribute('data-admitflow-target', m);
		return '[data-admitflow-target="' + m + '"]';
	}
	const candidateQuery = 'button, a, input, select, textarea, label, li, ' +
		'[role="button"], [role="link"], [role="menuitem"], [role="option"], [role="tab"], [role="row"]';
	for (const el of document.querySelectorAll(candidateQuery)) {
		if (usable(el) && labelOf(el).includes(hint)) return mark(el);
	}
	if (!deep) return '';
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, {
		acceptNode: function(node) {
			return node.textContent.toLowerCase().includes(hint)
				? NodeFilter.FILTER_ACCEPT : NodeFilter.FILTER_REJECT;
		}
	});
	let textNode;
	while ((textNode = walker.nextNode())) {
		let el = textNode.parentElement;
		let depth = 10;
		while (el && el !== document.body && depth > 0) {
			const clickable = el.tagName === 'BUTTON' || el.tagName === 'A' ||
				el.onclick != null ||
				['button', 'link', 'menuitem', 'option', 'row'].includes(el.getAttribute('role'));
			if (clickable && usable(el)) return mark(el);
			el = el.parentElement;
			depth--;
		}
	}
	return '';
})()`
