package sandbox_test

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/verdict/internal/sandbox"
)

// checks wraps boolean expressions into a test runner returning one result
// per expression.
func checks(setup string, exprs ...string) string {
	body := ""
	for _, e := range exprs {
		body += "\n\t\tresults.push({ pass: !!(" + e + "), description: " + quote(e) + " });"
	}
	return "function (code) {\n\tconst results = [];\n\t" + setup + body + "\n\treturn results;\n}"
}

func quote(s string) string {
	out := []byte{'"'}
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}

func TestDOM(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		code   string
		runner string
	}{
		{
			name: "learner code mutates the provided document",
			html: `<div id="out"></div>`,
			code: `document.getElementById("out").textContent = "hi";`,
			runner: checks(`new Function(code)(); const el = document.querySelector("#out");`,
				`el.textContent === "hi"`,
				`el.tagName === "DIV"`,
				`document.body.children.length === 1`,
			),
		},
		{
			name: "tree building",
			html: `<ul id="list"></ul>`,
			runner: checks(`
				const list = document.getElementById("list");
				for (const label of ["a", "b", "c"]) {
					const li = document.createElement("li");
					li.textContent = label;
					list.appendChild(li);
				}
				list.insertBefore(document.createElement("li"), list.firstElementChild);
				list.lastElementChild.remove();`,
				`list.children.length === 3`,
				`list.querySelectorAll("li")[1].textContent === "a"`,
				`list.firstChild.textContent === ""`,
				`list.innerHTML === "<li></li><li>a</li><li>b</li>"`,
				`list.children[1].parentElement === list`,
				`list.children[1].nextElementSibling.textContent === "b"`,
			),
		},
		{
			name: "wrappers are stable",
			html: `<p class="x">t</p>`,
			runner: checks(``,
				`document.querySelector("p") === document.querySelector(".x")`,
				`document.body.firstChild === document.querySelector("p")`,
			),
		},
		{
			name: "innerHTML parses markup",
			html: `<ul></ul>`,
			runner: checks(`const ul = document.querySelector("ul"); ul.innerHTML = "<li>a</li><li class='on'>b</li>";`,
				`ul.querySelectorAll("li").length === 2`,
				`ul.querySelector(".on").textContent === "b"`,
				`ul.outerHTML === '<ul><li>a</li><li class="on">b</li></ul>'`,
			),
		},
		{
			name: "classList and attributes",
			html: `<button class="btn">go</button>`,
			runner: checks(`
				const b = document.querySelector("button");
				b.classList.add("primary", "big");
				b.classList.remove("big");
				b.classList.toggle("active");
				b.setAttribute("aria-label", "Go");
				b.dataset.userId = "7";`,
				`b.className === "btn primary active"`,
				`b.classList.contains("primary")`,
				`!b.classList.contains("big")`,
				`b.classList.length === 3`,
				`b.getAttribute("aria-label") === "Go"`,
				`b.getAttribute("data-user-id") === "7"`,
				`b.dataset.userId === "7"`,
				`b.matches("button.primary.active")`,
				`b.closest("body") === document.body`,
			),
		},
		{
			name: "inline style",
			html: `<div style="color: red"></div>`,
			runner: checks(`const d = document.querySelector("div"); d.style.backgroundColor = "blue"; d.style.color = "";`,
				`d.style.backgroundColor === "blue"`,
				`d.getAttribute("style") === "background-color: blue;"`,
				`d.style.getPropertyValue("background-color") === "blue"`,
			),
		},
		{
			name: "computed style",
			html: `<style>.x { color: #ff0000; width: 200px; }</style><p class="x">t</p>`,
			runner: checks(`const s = getComputedStyle(document.querySelector("p"));`,
				`s.color === "rgb(255, 0, 0)"`,
				`s.width === "200px"`,
				`window.getComputedStyle(document.querySelector("p")).getPropertyValue("width") === "200px"`,
				`s.display === "block"`,
			),
		},
		{
			name: "events bubble and stop",
			html: `<div id="outer"><button id="btn">x</button></div>`,
			runner: checks(`
				const log = [];
				const outer = document.getElementById("outer");
				const btn = document.getElementById("btn");
				outer.addEventListener("click", (e) => log.push("outer:" + e.target.id));
				btn.addEventListener("click", function () { log.push("btn:" + this.id); });
				btn.click();
				const once = () => log.push("once");
				btn.addEventListener("ping", once, { once: true });
				btn.dispatchEvent(new Event("ping"));
				btn.dispatchEvent(new Event("ping"));
				btn.addEventListener("stop", (e) => e.stopPropagation());
				outer.addEventListener("stop", () => log.push("leaked"));
				btn.dispatchEvent(new CustomEvent("stop", { bubbles: true, detail: 1 }));
				let prevented = btn.dispatchEvent(new Event("x", { cancelable: true }));
				btn.onx = (e) => e.preventDefault();
				prevented = !btn.dispatchEvent(new Event("x", { cancelable: true }));`,
				`log.join(",") === "btn:btn,outer:btn,once"`,
				`prevented`,
			),
		},
		{
			name: "checkbox click toggles",
			html: `<input type="checkbox" id="c">`,
			runner: checks(`
				const c = document.getElementById("c");
				let changes = 0;
				c.addEventListener("change", () => changes++);
				c.click();`,
				`c.checked === true`,
				`changes === 1`,
			),
		},
		{
			name: "form values",
			html: `<input id="i" value="a"><textarea id="t">hello</textarea><select id="s"><option>x</option><option value="y" selected>Y</option></select>`,
			runner: checks(`document.getElementById("i").value = "typed";`,
				`document.getElementById("i").value === "typed"`,
				`document.getElementById("t").value === "hello"`,
				`document.getElementById("s").value === "y"`,
			),
		},
		{
			name: "DOMParser",
			runner: checks(`const doc = new DOMParser().parseFromString("<p>x</p><p>y</p>", "text/html");`,
				`doc.querySelectorAll("p").length === 2`,
				`doc.body.textContent === "xy"`,
				`document.querySelectorAll("p").length === 0`,
			),
		},
		{
			name: "invalid selector throws SyntaxError",
			runner: checks(`let name = ""; try { document.querySelector("p["); } catch (e) { name = e.name; }`,
				`name === "SyntaxError"`,
			),
		},
		{
			name: "fragments move their children",
			html: `<div></div>`,
			runner: checks(`
				const frag = document.createDocumentFragment();
				frag.append("text", document.createElement("span"));
				document.querySelector("div").appendChild(frag);`,
				`document.querySelector("div").childNodes.length === 2`,
				`frag.childNodes.length === 0`,
				`document.querySelector("div").innerHTML === "text<span></span>"`,
			),
		},
		{
			name: "hierarchy errors",
			html: `<div><p></p></div>`,
			runner: checks(`let err = ""; try { document.querySelector("p").appendChild(document.querySelector("div")); } catch (e) { err = e.name; }`,
				`err === "HierarchyRequestError"`,
			),
		},
		{
			name: "timers work alongside the DOM",
			html: `<span></span>`,
			runner: `async function () {
				const s = document.querySelector("span");
				await new Promise((resolve) => requestAnimationFrame(() => { s.textContent = "done"; resolve(); }));
				return [{ pass: s.textContent === "done", description: "frame ran" }];
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := newSupervisor().Run(context.Background(), sandbox.Job{
				Code:          tt.code,
				TestRunnerStr: tt.runner,
				HTML:          tt.html,
				DOM:           true,
			})
			if outcome.IsError() {
				t.Fatalf("Run() error = %s", outcome.Error)
			}
			if len(outcome.Results) == 0 {
				t.Fatal("Run() returned no results")
			}
			for _, r := range outcome.Results {
				if !r.Pass {
					t.Errorf("check failed: %s", r.Description)
				}
			}
		})
	}
}
