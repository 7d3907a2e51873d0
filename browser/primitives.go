package browser

import (
	"encoding/json"
	"fmt"
)

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

const waitForDocumentReadyJS = `const waitForDocumentReady = () => new Promise((resolve) => {
	const check = () => {
		if (document.readyState === "complete") {
			resolve();
		} else {
			setTimeout(check, 10);
		}
	};
	check();
});`

// TagElementsScript tags every element lacking the uid attribute with a fresh
// uid and resolves to the bounding boxes and page metadata. Uids already on
// the page are kept so that elements named in earlier turns stay addressable.
func TagElementsScript(uidKey string) string {
	return fmt.Sprintf(`(async (uidKey, prefix) => {
	%s
	await waitForDocumentReady();
	let next = window.__navigatorNextUID || 0;
	const bboxes = {};
	document.querySelectorAll("*").forEach((element) => {
		let uid = element.getAttribute(uidKey);
		if (!uid) {
			uid = prefix + next;
			next++;
			element.setAttribute(uidKey, uid);
		}
		const r = element.getBoundingClientRect();
		bboxes[uid] = {x: r.x, y: r.y, width: r.width, height: r.height, top: r.top, left: r.left, right: r.right, bottom: r.bottom};
	});
	window.__navigatorNextUID = next;
	return {
		bboxes: bboxes,
		metadata: {
			mouseX: 0,
			mouseY: 0,
			url: window.location.href,
			viewportHeight: window.innerHeight,
			viewportWidth: window.innerWidth,
			zoomLevel: window.devicePixelRatio,
		},
	};
})(%s, %s)`, waitForDocumentReadyJS, jsString(uidKey), jsString(UIDPrefix))
}

// DescribeElementScript resolves to the element tagged with uid in the shape
// of a prev turn element, or rejects when the element cannot be acted on.
func DescribeElementScript(uidKey, uid string) string {
	return fmt.Sprintf(`(async (query) => {
	%s
	await waitForDocumentReady();
	const element = document.querySelector(query);
	if (!element) {
		throw new Error("element not found");
	}
	const visible = !!(element.offsetWidth || element.offsetHeight || element.getClientRects().length);
	if (!visible) {
		throw new Error("element not visible");
	}
	if (element.disabled) {
		throw new Error("element is disabled");
	}
	const attributes = {};
	for (const attr of element.attributes) {
		attributes[attr.name] = attr.value;
	}
	const r = element.getBoundingClientRect();
	return {
		attributes: attributes,
		bbox: {x: r.x, y: r.y, width: r.width, height: r.height, top: r.top, left: r.left, right: r.right, bottom: r.bottom},
		tagName: element.tagName,
		xpath: "",
		textContent: (element.textContent || "").trim().slice(0, 200),
	};
})(%s)`, waitForDocumentReadyJS, jsString(ElementQuery(uidKey, uid)))
}

// SetValueScript assigns value to an input-like element and fires the input
// and change events a page listens for.
func SetValueScript(uidKey, uid, value string) string {
	return fmt.Sprintf(`((query, value) => {
	const element = document.querySelector(query);
	if (!element) {
		throw new Error("element not found");
	}
	if ("value" in element) {
		element.value = value;
	} else if (element.isContentEditable) {
		element.textContent = value;
	} else {
		throw new Error("element cannot receive text");
	}
	element.dispatchEvent(new Event("input", {bubbles: true}));
	element.dispatchEvent(new Event("change", {bubbles: true}));
	return true;
})(%s, %s)`, jsString(ElementQuery(uidKey, uid)), jsString(value))
}

// SubmitScript submits the form of the element tagged with uid.
func SubmitScript(uidKey, uid string) string {
	return fmt.Sprintf(`((query) => {
	const element = document.querySelector(query);
	if (!element) {
		throw new Error("element not found");
	}
	const form = element.tagName === "FORM" ? element : element.form || element.closest("form");
	if (!form) {
		throw new Error("element is not in a form");
	}
	if (form.requestSubmit) {
		form.requestSubmit();
	} else {
		form.submit();
	}
	return true;
})(%s)`, jsString(ElementQuery(uidKey, uid)))
}

func ScrollScript(x, y int) string {
	return fmt.Sprintf(`window.scrollTo(%d, %d); true;`, x, y)
}
